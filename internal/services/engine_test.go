package services

import (
	"context"
	"sync"
	"testing"

	"github.com/farellandr/rifa/internal/gateway"
	"github.com/farellandr/rifa/internal/models"
	"github.com/farellandr/rifa/internal/testutil"
	"gorm.io/gorm"
)

type fakeEvents struct {
	mu   sync.Mutex
	keys []string
}

func (f *fakeEvents) PublishJSON(ctx context.Context, key string, v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	return nil
}

func (f *fakeEvents) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, k := range f.keys {
		if k == key {
			n++
		}
	}
	return n
}

type fakeNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeNotifier) Notify(ctx context.Context, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
}

func (f *fakeNotifier) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.texts)
}

type fixture struct {
	engine   *Engine
	db       *gorm.DB
	clock    *testutil.Clock
	gw       *gateway.Mock
	events   *fakeEvents
	notifier *fakeNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	clock := testutil.NewClock()
	gw := gateway.NewMock()
	e := NewEngine(db, gw, Settings{WebhookSecret: "whsec", XenditCallbackToken: "cbtok"})
	e.Now = clock.Now
	f := &fixture{engine: e, db: db, clock: clock, gw: gw, events: &fakeEvents{}, notifier: &fakeNotifier{}}
	e.Events = f.events
	e.Notifier = f.notifier
	return f
}

func (f *fixture) payment(t *testing.T, gatewayID string) models.Payment {
	t.Helper()
	var p models.Payment
	if err := f.db.Where("gateway_payment_id = ?", gatewayID).First(&p).Error; err != nil {
		t.Fatalf("load payment %s: %v", gatewayID, err)
	}
	return p
}

func (f *fixture) ticketOwners(t *testing.T, raffleID uint) map[int]uint {
	t.Helper()
	var tickets []models.Ticket
	if err := f.db.Where("raffle_id = ?", raffleID).Find(&tickets).Error; err != nil {
		t.Fatalf("load tickets: %v", err)
	}
	out := make(map[int]uint, len(tickets))
	for _, tk := range tickets {
		out[tk.Number] = tk.PaymentID
	}
	return out
}

func buyer(email string) Buyer {
	return Buyer{Name: "Ana Pérez", Email: email, Phone: "+56911111111"}
}

func seq(from, to int) []int {
	out := make([]int, 0, to-from+1)
	for n := from; n <= to; n++ {
		out = append(out, n)
	}
	return out
}

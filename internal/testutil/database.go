// Package testutil opens throwaway databases for package tests.
package testutil

import (
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/farellandr/rifa/internal/models"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_]`)

// NewDB returns an in-memory SQLite database private to t with every table
// migrated. gorm drops row-locking clauses on SQLite; a single connection
// serialises access instead.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", unsafeName.ReplaceAllString(t.Name(), "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func CreateRaffle(t *testing.T, db *gorm.DB, total, price int) *models.Raffle {
	t.Helper()
	r := &models.Raffle{
		Title:        "Rifa de prueba",
		PriceCLP:     price,
		NumbersTotal: total,
		IsActive:     true,
	}
	if err := db.Create(r).Error; err != nil {
		t.Fatalf("create raffle: %v", err)
	}
	return r
}

// CreatePayment inserts p after filling required defaults.
func CreatePayment(t *testing.T, db *gorm.DB, p *models.Payment) *models.Payment {
	t.Helper()
	if p.Status == "" {
		p.Status = models.PaymentPending
	}
	if p.Gateway == "" {
		p.Gateway = models.GatewayMock
	}
	if p.BuyerName == "" {
		p.BuyerName = "Ana"
	}
	if p.BuyerEmail == "" {
		p.BuyerEmail = "ana@example.com"
	}
	if p.Metadata == nil {
		p.Metadata = datatypes.JSON("{}")
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("create payment: %v", err)
	}
	return p
}

// Meta encodes chosen numbers into a metadata document.
func Meta(numbers ...int) datatypes.JSON {
	return models.EncodeMetadata(map[string]interface{}{models.MetaChosenNumbers: numbers})
}

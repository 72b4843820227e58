package services

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/farellandr/rifa/internal/models"
	"github.com/farellandr/rifa/internal/testutil"
)

func TestSettlePartialFulfillment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	raffle := testutil.CreateRaffle(t, f.db, 100, 2000)

	other := testutil.CreatePayment(t, f.db, &models.Payment{RaffleID: raffle.ID, GatewayPaymentID: "other", Metadata: testutil.Meta(6)})
	if _, err := f.engine.Settle(ctx, other.GatewayPaymentID); err != nil {
		t.Fatalf("settle other: %v", err)
	}
	p := testutil.CreatePayment(t, f.db, &models.Payment{RaffleID: raffle.ID, GatewayPaymentID: "p", BuyerEmail: "p@b.cl", Metadata: testutil.Meta(5, 6, 7)})

	res, err := f.engine.Settle(ctx, p.GatewayPaymentID)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if !res.Found || res.AlreadyPaid || res.Status != models.PaymentPaid {
		t.Errorf("result = %+v", res)
	}
	if !reflect.DeepEqual(res.PaidNumbers, []int{5, 7}) || !reflect.DeepEqual(res.ConflictNumbers, []int{6}) {
		t.Errorf("paid=%v conflicts=%v", res.PaidNumbers, res.ConflictNumbers)
	}

	owners := f.ticketOwners(t, raffle.ID)
	want := map[int]uint{5: p.ID, 6: other.ID, 7: p.ID}
	if !reflect.DeepEqual(owners, want) {
		t.Errorf("owners = %v, want %v", owners, want)
	}

	stored := f.payment(t, p.GatewayPaymentID)
	if stored.Status != models.PaymentPaid || stored.PaidAt == nil {
		t.Errorf("stored status=%s paid_at=%v", stored.Status, stored.PaidAt)
	}
	meta := models.DecodeMetadata(stored.Metadata)
	for key, want := range map[string][]int{
		models.MetaChosenNumbers:   {5, 6, 7},
		models.MetaPaidNumbers:     {5, 7},
		models.MetaConflictNumbers: {6},
	} {
		got := models.DecodeChosenNumbers(models.EncodeMetadata(map[string]interface{}{models.MetaChosenNumbers: meta[key]}), nil).Numbers
		if !reflect.DeepEqual(got, want) {
			t.Errorf("%s = %v, want %v", key, got, want)
		}
	}
	if f.notifier.len() != 1 {
		t.Errorf("expected one conflict notification, got %d", f.notifier.len())
	}
}

func TestSettleIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	raffle := testutil.CreateRaffle(t, f.db, 100, 2000)
	p := testutil.CreatePayment(t, f.db, &models.Payment{RaffleID: raffle.ID, GatewayPaymentID: "p", Metadata: testutil.Meta(1, 2)})

	first, err := f.engine.Settle(ctx, "p")
	if err != nil {
		t.Fatalf("first Settle: %v", err)
	}
	firstStored := f.payment(t, "p")

	f.clock.Advance(time.Hour)
	second, err := f.engine.Settle(ctx, "p")
	if err != nil {
		t.Fatalf("second Settle: %v", err)
	}
	if !second.AlreadyPaid {
		t.Error("second settle should report a replay")
	}
	if !reflect.DeepEqual(first.PaidNumbers, second.PaidNumbers) || len(second.ConflictNumbers) != 0 {
		t.Errorf("first=%+v second=%+v", first, second)
	}

	secondStored := f.payment(t, "p")
	if !firstStored.PaidAt.Equal(*secondStored.PaidAt) {
		t.Errorf("paid_at moved from %v to %v", firstStored.PaidAt, secondStored.PaidAt)
	}
	if owners := f.ticketOwners(t, raffle.ID); !reflect.DeepEqual(owners, map[int]uint{1: p.ID, 2: p.ID}) {
		t.Errorf("owners = %v", owners)
	}
	if f.events.count(EventPaymentSettled) != 1 {
		t.Errorf("settled events = %d, want 1", f.events.count(EventPaymentSettled))
	}
}

func TestSettleWithoutNumbers(t *testing.T) {
	f := newFixture(t)
	raffle := testutil.CreateRaffle(t, f.db, 100, 2000)
	testutil.CreatePayment(t, f.db, &models.Payment{RaffleID: raffle.ID, GatewayPaymentID: "donation-1", Metadata: nil})

	res, err := f.engine.Settle(context.Background(), "donation-1")
	if err != nil || !res.Found {
		t.Fatalf("Settle = %+v, %v", res, err)
	}
	if got := f.payment(t, "donation-1"); got.Status != models.PaymentPaid || got.PaidAt == nil {
		t.Errorf("status=%s paid_at=%v", got.Status, got.PaidAt)
	}
	if owners := f.ticketOwners(t, raffle.ID); len(owners) != 0 {
		t.Errorf("donation produced tickets: %v", owners)
	}
}

func TestSettleLegacyChosenNumber(t *testing.T) {
	f := newFixture(t)
	raffle := testutil.CreateRaffle(t, f.db, 100, 2000)
	legacy := 33
	p := testutil.CreatePayment(t, f.db, &models.Payment{RaffleID: raffle.ID, GatewayPaymentID: "old", ChosenNumber: &legacy})

	res, err := f.engine.Settle(context.Background(), "old")
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if !reflect.DeepEqual(res.PaidNumbers, []int{33}) {
		t.Errorf("paid = %v", res.PaidNumbers)
	}
	if owners := f.ticketOwners(t, raffle.ID); owners[33] != p.ID {
		t.Errorf("owners = %v", owners)
	}
	meta := models.DecodeMetadata(f.payment(t, "old").Metadata)
	if _, ok := meta[models.MetaChosenNumbers]; !ok {
		t.Error("chosen_numbers not recorded")
	}
}

func TestSettleUnknownPayment(t *testing.T) {
	f := newFixture(t)
	res, err := f.engine.Settle(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if res.Found {
		t.Error("unknown payment reported as found")
	}
}

func TestSettleTerminalFailure(t *testing.T) {
	f := newFixture(t)
	raffle := testutil.CreateRaffle(t, f.db, 100, 2000)
	for _, status := range []string{models.PaymentFailed, models.PaymentExpired} {
		testutil.CreatePayment(t, f.db, &models.Payment{RaffleID: raffle.ID, GatewayPaymentID: status, Status: status, Metadata: testutil.Meta(1)})
		_, err := f.engine.Settle(context.Background(), status)
		var se *StateError
		if !errors.As(err, &se) {
			t.Errorf("%s: err = %v, want StateError", status, err)
		}
	}
	if owners := f.ticketOwners(t, raffle.ID); len(owners) != 0 {
		t.Errorf("tickets created for terminal payments: %v", owners)
	}
}

func TestSettleReservationKeepsNumbersTaken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	raffle := testutil.CreateRaffle(t, f.db, 100, 2000)

	res, err := f.engine.Reserve(ctx, ReserveRequest{Numbers: []int{3, 4}, Buyer: buyer("a@b.cl")})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if _, err := f.engine.Settle(ctx, res.Payment.GatewayPaymentID); err != nil {
		t.Fatalf("Settle: %v", err)
	}
	f.clock.Advance(13 * time.Hour)

	taken, err := f.engine.TakenNumbers(ctx, raffle.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(taken.Sorted(), []int{3, 4}) {
		t.Errorf("taken = %v", taken.Sorted())
	}
}

func TestMarkFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	raffle := testutil.CreateRaffle(t, f.db, 100, 2000)
	testutil.CreatePayment(t, f.db, &models.Payment{RaffleID: raffle.ID, GatewayPaymentID: "pend"})
	testutil.CreatePayment(t, f.db, &models.Payment{RaffleID: raffle.ID, GatewayPaymentID: "paid", Status: models.PaymentPaid})

	if p, changed, err := f.engine.MarkFailed(ctx, "pend"); err != nil || !changed || p.Status != models.PaymentFailed {
		t.Errorf("MarkFailed(pend) = %v, %v, %v", p, changed, err)
	}
	if p, changed, err := f.engine.MarkFailed(ctx, "pend"); err != nil || changed || p.Status != models.PaymentFailed {
		t.Errorf("MarkFailed(pend) again = %v, %v, %v", p, changed, err)
	}
	if p, changed, err := f.engine.MarkFailed(ctx, "paid"); err != nil || changed || p.Status != models.PaymentPaid {
		t.Errorf("MarkFailed(paid) = %v, %v, %v", p, changed, err)
	}
	if _, _, err := f.engine.MarkFailed(ctx, "nope"); !IsNotFound(err) {
		t.Errorf("MarkFailed(nope) err = %v", err)
	}
	if f.events.count(EventPaymentFailed) != 1 {
		t.Errorf("failed events = %d", f.events.count(EventPaymentFailed))
	}
}

func TestSettleMany(t *testing.T) {
	f := newFixture(t)
	raffle := testutil.CreateRaffle(t, f.db, 100, 2000)
	owner := testutil.CreatePayment(t, f.db, &models.Payment{RaffleID: raffle.ID, GatewayPaymentID: "a", Metadata: testutil.Meta(1)})
	testutil.CreatePayment(t, f.db, &models.Payment{RaffleID: raffle.ID, GatewayPaymentID: "b", Metadata: testutil.Meta(1, 2)})
	testutil.CreatePayment(t, f.db, &models.Payment{RaffleID: raffle.ID, GatewayPaymentID: "c", Status: models.PaymentFailed})

	out := f.engine.SettleMany(context.Background(), []string{owner.GatewayPaymentID, "b", "c", "missing"})
	got := make([]string, len(out))
	for i, o := range out {
		got[i] = o.Result
	}
	want := []string{OutcomeSettled, OutcomeConflict, OutcomeError, OutcomeNotFound}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("results = %v, want %v", got, want)
	}
	if !reflect.DeepEqual(out[1].ConflictNumbers, []int{1}) || !reflect.DeepEqual(out[1].PaidNumbers, []int{2}) {
		t.Errorf("b outcome = %+v", out[1])
	}
}

func TestExpireStaleReservations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	testutil.CreateRaffle(t, f.db, 100, 2000)
	res, err := f.engine.Reserve(ctx, ReserveRequest{Numbers: []int{1}, Buyer: buyer("a@b.cl")})
	if err != nil {
		t.Fatal(err)
	}

	if n, err := f.engine.ExpireStaleReservations(ctx); err != nil || n != 0 {
		t.Fatalf("early expire = %d, %v", n, err)
	}
	f.clock.Advance(12 * time.Hour)
	if n, err := f.engine.ExpireStaleReservations(ctx); err != nil || n != 1 {
		t.Fatalf("expire = %d, %v", n, err)
	}
	if got := f.payment(t, res.Payment.GatewayPaymentID).Status; got != models.PaymentExpired {
		t.Errorf("status = %s", got)
	}
	var se *StateError
	if _, err := f.engine.Settle(ctx, res.Payment.GatewayPaymentID); !errors.As(err, &se) {
		t.Errorf("settle expired err = %v", err)
	}
}

package offers

import (
	"context"
	"errors"
	"testing"
	"time"

	"promobot/internal/domain"
)

type fakeOfferClient struct {
	offers map[string][]domain.Offer
	errs   map[string]error
	calls  int
}

func (f *fakeOfferClient) GetOffers(ctx context.Context, creds domain.SessionCredentials) ([]domain.Offer, error) {
	f.calls++
	if err := f.errs[creds.CSRFToken]; err != nil {
		return nil, err
	}
	return f.offers[creds.CSRFToken], nil
}

type fakeLister struct {
	records []domain.AccountRecord
	err     error
}

func (f *fakeLister) List(ctx context.Context) ([]domain.AccountRecord, error) {
	return f.records, f.err
}

func account(title, csrf string) domain.AccountRecord {
	return domain.AccountRecord{
		Title:       title,
		Credentials: domain.SessionCredentials{SessionTokenA: "a", SessionTokenB: "b", CSRFToken: csrf},
	}
}

func TestSyncPopulatesCache(t *testing.T) {
	client := &fakeOfferClient{
		offers: map[string][]domain.Offer{
			"c1": {{Name: "Cheese"}},
			"c2": {{Name: "Bread"}, {Name: "Milk"}},
		},
	}
	lister := &fakeLister{records: []domain.AccountRecord{account("shop1", "c1"), account("shop2", "c2")}}

	c := NewCache(client)
	if err := c.Sync(context.Background(), lister, false); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	snap := c.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("len(Snapshot()) = %d, want 2", len(snap))
	}
	if snap[0].Title != "shop1" || len(snap[0].Offers) != 1 {
		t.Errorf("Snapshot()[0] = %+v", snap[0])
	}

	offers, ok := c.ForAccount("shop2")
	if !ok || len(offers) != 2 {
		t.Errorf("ForAccount(shop2) = %v/%v", offers, ok)
	}
	if _, ok := c.ForAccount("ghost"); ok {
		t.Error("ForAccount(ghost) must report a miss")
	}
}

func TestSyncSameDayIsNoOp(t *testing.T) {
	client := &fakeOfferClient{offers: map[string][]domain.Offer{"c1": {{Name: "Cheese"}}}}
	lister := &fakeLister{records: []domain.AccountRecord{account("shop1", "c1")}}

	c := NewCache(client)
	day := time.Date(2026, 8, 23, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return day }

	if err := c.Sync(context.Background(), lister, false); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if client.calls != 1 {
		t.Fatalf("calls = %d, want 1", client.calls)
	}

	// Later the same UTC day: skipped.
	c.now = func() time.Time { return day.Add(10 * time.Hour) }
	if err := c.Sync(context.Background(), lister, false); err != nil {
		t.Fatalf("second Sync() error = %v", err)
	}
	if client.calls != 1 {
		t.Errorf("calls = %d, want 1 (same-day sync skipped)", client.calls)
	}

	// Forced sync refreshes regardless.
	if err := c.Sync(context.Background(), lister, true); err != nil {
		t.Fatalf("forced Sync() error = %v", err)
	}
	if client.calls != 2 {
		t.Errorf("calls = %d, want 2 after forced sync", client.calls)
	}

	// Next day: refreshed again.
	c.now = func() time.Time { return day.Add(24 * time.Hour) }
	if err := c.Sync(context.Background(), lister, false); err != nil {
		t.Fatalf("next-day Sync() error = %v", err)
	}
	if client.calls != 3 {
		t.Errorf("calls = %d, want 3 after day rollover", client.calls)
	}
}

func TestSyncSkipsFailingAccount(t *testing.T) {
	client := &fakeOfferClient{
		offers: map[string][]domain.Offer{"good": {{Name: "Cheese"}}},
		errs:   map[string]error{"bad": errors.New("session expired")},
	}
	lister := &fakeLister{records: []domain.AccountRecord{account("broken", "bad"), account("shop1", "good")}}

	c := NewCache(client)
	if err := c.Sync(context.Background(), lister, false); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	snap := c.Snapshot()
	if len(snap) != 1 || snap[0].Title != "shop1" {
		t.Errorf("Snapshot() = %+v, want only the healthy account", snap)
	}
}

func TestSyncListFailure(t *testing.T) {
	c := NewCache(&fakeOfferClient{})
	err := c.Sync(context.Background(), &fakeLister{err: errors.New("db closed")}, false)
	if err == nil {
		t.Fatal("want error when the account list is unavailable")
	}
}

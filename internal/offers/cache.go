// Package offers caches promotional offers per provisioned account. The
// backend publishes a new offer set daily, so the cache refreshes at most
// once per UTC day unless a sync is forced by an operator.
package offers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"promobot/internal/domain"
)

// OfferClient fetches the offer list for one account's credentials.
type OfferClient interface {
	GetOffers(ctx context.Context, creds domain.SessionCredentials) ([]domain.Offer, error)
}

// AccountLister enumerates the provisioned accounts to sync.
type AccountLister interface {
	List(ctx context.Context) ([]domain.AccountRecord, error)
}

// AccountOffers pairs an account title with its cached offers.
type AccountOffers struct {
	Title  string
	Offers []domain.Offer
}

// Cache is an internally-synchronized offer cache shared across chats.
type Cache struct {
	client OfferClient
	now    func() time.Time

	mu       sync.Mutex
	entries  []AccountOffers
	lastSync time.Time
}

// NewCache creates an empty cache; the first Sync always fetches.
func NewCache(client OfferClient) *Cache {
	return &Cache{client: client, now: time.Now}
}

// Sync refreshes the cache from the backend for every stored account. When
// force is false a second sync on the same UTC day is a no-op. Per-account
// fetch failures are logged and skipped so one expired session does not
// starve the others.
func (c *Cache) Sync(ctx context.Context, accounts AccountLister, force bool) error {
	c.mu.Lock()
	if !force && !c.lastSync.IsZero() && sameUTCDay(c.lastSync, c.now()) {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	records, err := accounts.List(ctx)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}

	entries := make([]AccountOffers, 0, len(records))
	for _, record := range records {
		offers, err := c.client.GetOffers(ctx, record.Credentials)
		if err != nil {
			slog.Warn("offer sync failed for account", "title", record.Title, "error", err)
			continue
		}
		entries = append(entries, AccountOffers{Title: record.Title, Offers: offers})
	}

	c.mu.Lock()
	c.entries = entries
	c.lastSync = c.now()
	c.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the cached entries, ordered as synced.
func (c *Cache) Snapshot() []AccountOffers {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]AccountOffers, len(c.entries))
	copy(out, c.entries)
	return out
}

// ForAccount returns the cached offers for one account title.
func (c *Cache) ForAccount(title string) ([]domain.Offer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if e.Title == title {
			return e.Offers, true
		}
	}
	return nil, false
}

func sameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

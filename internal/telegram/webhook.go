package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// secretTokenHeader carries the shared secret Telegram echoes back on every
// webhook delivery.
const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// Webhook receives updates pushed by Telegram over HTTPS. It is the
// alternative to Poller for deployments with a public address. Telegram
// delivers over parallel connections, so updates for the same chat are
// serialized with a per-chat lock before they reach the handler; events for
// one chat must never be processed concurrently.
type Webhook struct {
	addr    string
	secret  string
	handler Handler
	router  chi.Router

	mu        sync.Mutex
	chatLocks map[int64]*sync.Mutex
}

// NewWebhook creates a webhook update source listening on addr. Deliveries
// whose secret token header does not match secret are rejected.
func NewWebhook(addr, secret string, handler Handler) *Webhook {
	wh := &Webhook{
		addr:      addr,
		secret:    secret,
		handler:   handler,
		chatLocks: make(map[int64]*sync.Mutex),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/health"))
	r.Post("/telegram/webhook", wh.handleDelivery)
	wh.router = r

	return wh
}

// Router exposes the HTTP handler, mainly for tests.
func (wh *Webhook) Router() http.Handler {
	return wh.router
}

// Serve runs the webhook HTTP server until ctx is cancelled, then shuts it
// down gracefully.
func (wh *Webhook) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              wh.addr,
		Handler:           wh.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown webhook server: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("webhook server: %w", err)
	}
}

func (wh *Webhook) handleDelivery(w http.ResponseWriter, r *http.Request) {
	if wh.secret != "" && r.Header.Get(secretTokenHeader) != wh.secret {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var update Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		slog.Warn("undecodable webhook delivery", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	lock := wh.chatLock(updateChatID(update))
	lock.Lock()
	wh.handler.HandleUpdate(r.Context(), update)
	lock.Unlock()

	w.WriteHeader(http.StatusOK)
}

// updateChatID picks the chat an update belongs to for sequencing purposes.
// Callback queries are keyed by the pressing user, which is where their
// replies go.
func updateChatID(update Update) int64 {
	switch {
	case update.Message != nil:
		return update.Message.Chat.ID
	case update.CallbackQuery != nil:
		return update.CallbackQuery.From.ID
	}
	return 0
}

func (wh *Webhook) chatLock(chatID int64) *sync.Mutex {
	wh.mu.Lock()
	defer wh.mu.Unlock()
	lock := wh.chatLocks[chatID]
	if lock == nil {
		lock = &sync.Mutex{}
		wh.chatLocks[chatID] = lock
	}
	return lock
}

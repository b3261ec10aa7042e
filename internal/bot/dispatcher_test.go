package bot

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"promobot/internal/domain"
	"promobot/internal/loyalty"
	"promobot/internal/offers"
	"promobot/internal/onboarding"
	"promobot/internal/store"
	"promobot/internal/telegram"
)

type sentMessage struct {
	chatID int64
	text   string
	opts   *telegram.SendMessageOptions
}

type sentPhoto struct {
	chatID  int64
	photo   []byte
	caption string
}

type fakeSender struct {
	messages []sentMessage
	photos   []sentPhoto
	answered []string
}

func (f *fakeSender) SendMessage(ctx context.Context, chatID int64, text string, opts *telegram.SendMessageOptions) error {
	f.messages = append(f.messages, sentMessage{chatID: chatID, text: text, opts: opts})
	return nil
}

func (f *fakeSender) SendPhoto(ctx context.Context, chatID int64, photo []byte, caption, parseMode string) error {
	f.photos = append(f.photos, sentPhoto{chatID: chatID, photo: photo, caption: caption})
	return nil
}

func (f *fakeSender) AnswerCallbackQuery(ctx context.Context, callbackID string) error {
	f.answered = append(f.answered, callbackID)
	return nil
}

func (f *fakeSender) lastText(t *testing.T) string {
	t.Helper()
	if len(f.messages) == 0 {
		t.Fatal("no message sent")
	}
	return f.messages[len(f.messages)-1].text
}

type memStore struct {
	records map[string]domain.AccountRecord
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]domain.AccountRecord)}
}

func (m *memStore) Put(ctx context.Context, record domain.AccountRecord) error {
	m.records[record.Title] = record
	return nil
}

func (m *memStore) Get(ctx context.Context, title string) (domain.AccountRecord, error) {
	record, ok := m.records[title]
	if !ok {
		return domain.AccountRecord{}, store.ErrNotFound
	}
	return record, nil
}

func (m *memStore) Delete(ctx context.Context, title string) (domain.AccountRecord, error) {
	record, ok := m.records[title]
	if !ok {
		return domain.AccountRecord{}, store.ErrNotFound
	}
	delete(m.records, title)
	return record, nil
}

func (m *memStore) Rename(ctx context.Context, oldTitle, newTitle string) error {
	record, ok := m.records[oldTitle]
	if !ok {
		return store.ErrNotFound
	}
	delete(m.records, oldTitle)
	record.Title = newTitle
	m.records[newTitle] = record
	return nil
}

func (m *memStore) List(ctx context.Context) ([]domain.AccountRecord, error) {
	titles := make([]string, 0, len(m.records))
	for title := range m.records {
		titles = append(titles, title)
	}
	sort.Strings(titles)
	out := make([]domain.AccountRecord, 0, len(titles))
	for _, title := range titles {
		out = append(out, m.records[title])
	}
	return out, nil
}

func (m *memStore) Close() error { return nil }

type stubProvisioner struct{}

func (stubProvisioner) RequestSMSCode(ctx context.Context, phone string) error { return nil }

func (stubProvisioner) ComputeNextStep(ctx context.Context, phone string) (loyalty.Step, error) {
	return loyalty.StepAccountExists, nil
}

func (stubProvisioner) Login(ctx context.Context, title, phone, code string) (domain.AccountRecord, error) {
	return domain.AccountRecord{Title: title, PhoneNumber: phone}, nil
}

func (stubProvisioner) Register(ctx context.Context, phone, code, displayName string) error {
	return nil
}

type stubOfferClient struct {
	offers []domain.Offer
}

func (s *stubOfferClient) GetOffers(ctx context.Context, creds domain.SessionCredentials) ([]domain.Offer, error) {
	return s.offers, nil
}

const adminID = int64(100)

func newTestDispatcher(st store.AccountStore, cache *offers.Cache) (*Dispatcher, *fakeSender) {
	sender := &fakeSender{}
	if cache == nil {
		cache = offers.NewCache(&stubOfferClient{})
	}
	d := New(Config{
		Sender:         sender,
		Store:          st,
		Cache:          cache,
		Flow:           onboarding.New(stubProvisioner{}, st),
		AdminIDs:       []int64{adminID},
		EANFrontendURL: "https://ean.example/card/",
	})
	return d, sender
}

func textUpdate(chatID, fromID int64, text string) telegram.Update {
	return telegram.Update{Message: &telegram.Message{
		Chat: telegram.Chat{ID: chatID},
		From: &telegram.User{ID: fromID},
		Text: text,
	}}
}

func TestAddRequiresAdmin(t *testing.T) {
	d, sender := newTestDispatcher(newMemStore(), nil)
	ctx := context.Background()

	d.HandleUpdate(ctx, textUpdate(1, 999, "/add shop1 +15551234"))
	if got := sender.lastText(t); got != invalidNotice {
		t.Errorf("non-admin /add reply = %q, want invalid notice", got)
	}

	d.HandleUpdate(ctx, textUpdate(1, adminID, "/add shop1 +15551234"))
	if got := sender.lastText(t); !strings.Contains(got, "SMS code sent") {
		t.Errorf("admin /add reply = %q, want SMS prompt", got)
	}
}

func TestAddUsage(t *testing.T) {
	d, sender := newTestDispatcher(newMemStore(), nil)

	d.HandleUpdate(context.Background(), textUpdate(1, adminID, "/add onlytitle"))
	if got := sender.lastText(t); !strings.Contains(got, "Usage: /add") {
		t.Errorf("reply = %q, want usage hint", got)
	}
}

func TestHelpShowsAdminSectionOnlyToAdmins(t *testing.T) {
	d, sender := newTestDispatcher(newMemStore(), nil)
	ctx := context.Background()

	d.HandleUpdate(ctx, textUpdate(1, 999, "/help"))
	if got := sender.lastText(t); strings.Contains(got, "Admin commands") {
		t.Errorf("non-admin /help = %q, must not include admin commands", got)
	}

	d.HandleUpdate(ctx, textUpdate(1, adminID, "/help"))
	if got := sender.lastText(t); !strings.Contains(got, "Admin commands") {
		t.Errorf("admin /help = %q, want admin commands", got)
	}
}

func TestOnboardingConversationThroughDispatcher(t *testing.T) {
	st := newMemStore()
	d, sender := newTestDispatcher(st, nil)
	ctx := context.Background()

	d.HandleUpdate(ctx, textUpdate(1, adminID, "/add shop1 +15551234"))
	d.HandleUpdate(ctx, textUpdate(1, adminID, "0000"))

	if got := sender.lastText(t); !strings.Contains(got, `"shop1"`) {
		t.Errorf("reply = %q, want provisioned confirmation", got)
	}
	if _, err := st.Get(ctx, "shop1"); err != nil {
		t.Errorf("account not stored: %v", err)
	}
}

func TestCancelWhileIdle(t *testing.T) {
	d, sender := newTestDispatcher(newMemStore(), nil)

	d.HandleUpdate(context.Background(), textUpdate(1, adminID, "/cancel"))
	if got := sender.lastText(t); got != "Nothing to cancel." {
		t.Errorf("reply = %q", got)
	}
}

func TestNonTextMessages(t *testing.T) {
	d, sender := newTestDispatcher(newMemStore(), nil)
	ctx := context.Background()

	// Idle chat: generic notice.
	d.HandleUpdate(ctx, telegram.Update{Message: &telegram.Message{
		Chat: telegram.Chat{ID: 1}, From: &telegram.User{ID: adminID},
	}})
	if got := sender.lastText(t); got != invalidNotice {
		t.Errorf("reply = %q, want invalid notice", got)
	}

	// Mid-onboarding: re-prompt for the code.
	d.HandleUpdate(ctx, textUpdate(1, adminID, "/add shop1 +15551234"))
	d.HandleUpdate(ctx, telegram.Update{Message: &telegram.Message{
		Chat: telegram.Chat{ID: 1}, From: &telegram.User{ID: adminID},
	}})
	if got := sender.lastText(t); !strings.Contains(got, "SMS code") {
		t.Errorf("reply = %q, want code re-prompt", got)
	}
}

func TestListRenameRemove(t *testing.T) {
	st := newMemStore()
	st.Put(context.Background(), domain.AccountRecord{Title: "shop1", PhoneNumber: "+1555", CardNumber: "262"})
	d, sender := newTestDispatcher(st, nil)
	ctx := context.Background()

	d.HandleUpdate(ctx, textUpdate(1, adminID, "/list"))
	if got := sender.lastText(t); !strings.Contains(got, "<b>shop1</b>") {
		t.Errorf("/list reply = %q", got)
	}

	d.HandleUpdate(ctx, textUpdate(1, adminID, "/rename shop1 shop2"))
	if got := sender.lastText(t); !strings.Contains(got, "Renamed account") {
		t.Errorf("/rename reply = %q", got)
	}

	d.HandleUpdate(ctx, textUpdate(1, adminID, "/rename ghost other"))
	if got := sender.lastText(t); !strings.Contains(got, "Error renaming") {
		t.Errorf("/rename missing reply = %q", got)
	}

	d.HandleUpdate(ctx, textUpdate(1, adminID, "/remove shop2"))
	if got := sender.lastText(t); !strings.Contains(got, "Removed account") {
		t.Errorf("/remove reply = %q", got)
	}

	d.HandleUpdate(ctx, textUpdate(1, adminID, "/remove shop2"))
	if got := sender.lastText(t); !strings.Contains(got, "Error removing") {
		t.Errorf("/remove missing reply = %q", got)
	}
}

func TestSyncAndOffersOverview(t *testing.T) {
	st := newMemStore()
	st.Put(context.Background(), domain.AccountRecord{Title: "shop1"})
	cache := offers.NewCache(&stubOfferClient{offers: []domain.Offer{
		{Name: "Cheese", RegularPriceUnit: "5.00/kg", OfferPriceUnit: "2.50/kg"},
	}})
	d, sender := newTestDispatcher(st, cache)
	ctx := context.Background()

	d.HandleUpdate(ctx, textUpdate(1, 999, "/offers"))
	if got := sender.lastText(t); !strings.Contains(got, "No offers cached") {
		t.Errorf("/offers before sync = %q", got)
	}

	d.HandleUpdate(ctx, textUpdate(1, 999, "/sync"))
	if got := sender.lastText(t); got != "Syncing finished." {
		t.Errorf("/sync reply = %q", got)
	}

	d.HandleUpdate(ctx, textUpdate(1, 999, "/offers"))
	last := sender.messages[len(sender.messages)-1]
	if !strings.Contains(last.text, "Cheese - 5.00/kg => 2.50/kg") {
		t.Errorf("/offers overview = %q", last.text)
	}
	if last.opts == nil || last.opts.ReplyMarkup == nil {
		t.Fatal("/offers must attach an inline keyboard")
	}
	buttons := last.opts.ReplyMarkup.InlineKeyboard
	if len(buttons) != 1 || buttons[0][0].CallbackData != "shop1" {
		t.Errorf("keyboard = %+v", buttons)
	}
}

func TestCallbackSendsOffersAndCardLink(t *testing.T) {
	cdn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/images/offer1.jpg" {
			t.Errorf("cdn path = %q", r.URL.Path)
		}
		io.WriteString(w, "jpeg-bytes")
	}))
	defer cdn.Close()

	st := newMemStore()
	st.Put(context.Background(), domain.AccountRecord{Title: "shop1", CardNumber: "2620001"})
	cache := offers.NewCache(&stubOfferClient{offers: []domain.Offer{
		{Name: "Cheese", ImageURL: "/images/offer1.jpg"},
		{Name: "Bread"},
	}})
	if err := cache.Sync(context.Background(), st, true); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	sender := &fakeSender{}
	d := New(Config{
		Sender:         sender,
		Store:          st,
		Cache:          cache,
		Flow:           onboarding.New(stubProvisioner{}, st),
		AdminIDs:       []int64{adminID},
		CDNRoot:        cdn.URL,
		EANFrontendURL: "https://ean.example/card/",
	})

	d.HandleUpdate(context.Background(), telegram.Update{CallbackQuery: &telegram.CallbackQuery{
		ID:   "cb1",
		From: telegram.User{ID: 55},
		Data: "shop1",
	}})

	if len(sender.answered) != 1 || sender.answered[0] != "cb1" {
		t.Errorf("answered = %v", sender.answered)
	}
	if len(sender.photos) != 1 || string(sender.photos[0].photo) != "jpeg-bytes" {
		t.Fatalf("photos = %+v", sender.photos)
	}
	if !strings.Contains(sender.photos[0].caption, "<b>Cheese</b>") {
		t.Errorf("photo caption = %q", sender.photos[0].caption)
	}

	// Imageless offer arrives as text, then the card link.
	if len(sender.messages) != 2 {
		t.Fatalf("messages = %+v", sender.messages)
	}
	if !strings.Contains(sender.messages[0].text, "<b>Bread</b>") {
		t.Errorf("messages[0] = %q", sender.messages[0].text)
	}
	if !strings.Contains(sender.messages[1].text, "https://ean.example/card/2620001") {
		t.Errorf("card link = %q", sender.messages[1].text)
	}
	if sender.messages[1].chatID != 55 {
		t.Errorf("card link chat = %d, want callback sender", sender.messages[1].chatID)
	}
}

func TestConfiguredHTTPTimeout(t *testing.T) {
	st := newMemStore()
	d := New(Config{
		Sender:      &fakeSender{},
		Store:       st,
		Cache:       offers.NewCache(&stubOfferClient{}),
		Flow:        onboarding.New(stubProvisioner{}, st),
		AdminIDs:    []int64{adminID},
		HTTPTimeout: 7 * time.Second,
	})
	if d.http.Timeout != 7*time.Second {
		t.Errorf("cdn client timeout = %v, want configured 7s", d.http.Timeout)
	}

	// Zero falls back to a sane default rather than no timeout at all.
	d = New(Config{
		Sender:   &fakeSender{},
		Store:    st,
		Cache:    offers.NewCache(&stubOfferClient{}),
		Flow:     onboarding.New(stubProvisioner{}, st),
		AdminIDs: []int64{adminID},
	})
	if d.http.Timeout == 0 {
		t.Error("cdn client timeout = 0, want a default")
	}
}

func TestCallbackUnknownAccount(t *testing.T) {
	d, sender := newTestDispatcher(newMemStore(), nil)

	d.HandleUpdate(context.Background(), telegram.Update{CallbackQuery: &telegram.CallbackQuery{
		ID:   "cb1",
		From: telegram.User{ID: 55},
		Data: "ghost",
	}})
	if got := sender.lastText(t); !strings.Contains(got, "Unknown account") {
		t.Errorf("reply = %q", got)
	}
}

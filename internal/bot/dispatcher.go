// Package bot routes Telegram updates to the onboarding flow, the account
// store and the offer cache. Public commands are available to everyone;
// account-mutating commands require a configured admin.
package bot

import (
	"context"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"promobot/internal/domain"
	"promobot/internal/offers"
	"promobot/internal/onboarding"
	"promobot/internal/store"
	"promobot/internal/telegram"
)

const invalidNotice = "Unable to handle the message. Type /help to see the usage."

const helpText = `These commands are supported:
/help - display this text.
/offers - list all offers.
/sync - synchronize offers.`

const adminHelpText = `Admin commands:
/add <title> <phone> - provision an account via SMS onboarding.
/cancel - cancel the onboarding in progress.
/list - list all provisioned accounts.
/rename <old> <new> - rename an account.
/remove <title> - remove the account with the given title.`

// Sender is the outbound surface the dispatcher needs from the Telegram
// client.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string, opts *telegram.SendMessageOptions) error
	SendPhoto(ctx context.Context, chatID int64, photo []byte, caption, parseMode string) error
	AnswerCallbackQuery(ctx context.Context, callbackID string) error
}

// Config wires a Dispatcher.
type Config struct {
	Sender         Sender
	Store          store.AccountStore
	Cache          *offers.Cache
	Flow           *onboarding.Flow
	AdminIDs       []int64
	CDNRoot        string
	EANFrontendURL string
	HTTPTimeout    time.Duration
}

// Dispatcher handles incoming updates. Per-update failures are reported to
// the chat or logged; they never terminate the process.
type Dispatcher struct {
	sender      Sender
	store       store.AccountStore
	cache       *offers.Cache
	flow        *onboarding.Flow
	admins      map[int64]struct{}
	cdnRoot     string
	eanFrontend string
	http        *http.Client
}

// New creates a dispatcher from the given collaborators.
func New(cfg Config) *Dispatcher {
	admins := make(map[int64]struct{}, len(cfg.AdminIDs))
	for _, id := range cfg.AdminIDs {
		admins[id] = struct{}{}
	}
	timeout := cfg.HTTPTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{
		sender:      cfg.Sender,
		store:       cfg.Store,
		cache:       cfg.Cache,
		flow:        cfg.Flow,
		admins:      admins,
		cdnRoot:     cfg.CDNRoot,
		eanFrontend: cfg.EANFrontendURL,
		http:        &http.Client{Timeout: timeout},
	}
}

// HandleUpdate routes one Telegram update.
func (d *Dispatcher) HandleUpdate(ctx context.Context, update telegram.Update) {
	switch {
	case update.CallbackQuery != nil:
		d.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		d.handleMessage(ctx, update.Message)
	}
}

func (d *Dispatcher) isAdmin(user *telegram.User) bool {
	if user == nil {
		return false
	}
	_, ok := d.admins[user.ID]
	return ok
}

func (d *Dispatcher) handleMessage(ctx context.Context, msg *telegram.Message) {
	chatID := msg.Chat.ID

	if msg.Text == "" {
		if reply, prompted := d.flow.HandleNonText(chatID); prompted {
			d.reply(ctx, chatID, reply)
			return
		}
		d.reply(ctx, chatID, invalidNotice)
		return
	}

	if strings.HasPrefix(msg.Text, "/") {
		d.handleCommand(ctx, msg)
		return
	}

	reply, consumed := d.flow.HandleText(ctx, chatID, msg.Text)
	switch {
	case consumed && reply != "":
		d.reply(ctx, chatID, reply)
	case consumed:
		// Stale result from a cancelled attempt, nothing to show.
	default:
		d.reply(ctx, chatID, invalidNotice)
	}
}

func (d *Dispatcher) handleCommand(ctx context.Context, msg *telegram.Message) {
	chatID := msg.Chat.ID
	fields := strings.Fields(msg.Text)
	cmd, _, _ := strings.Cut(fields[0], "@")
	args := fields[1:]

	switch cmd {
	case "/help":
		text := helpText
		if d.isAdmin(msg.From) {
			text += "\n\n" + adminHelpText
		}
		d.reply(ctx, chatID, text)
		return
	case "/offers":
		d.sendOffersOverview(ctx, chatID)
		return
	case "/sync":
		if err := d.cache.Sync(ctx, d.store, true); err != nil {
			d.reply(ctx, chatID, fmt.Sprintf("Syncing failed: %v", err))
			return
		}
		d.reply(ctx, chatID, "Syncing finished.")
		return
	}

	if !d.isAdmin(msg.From) {
		d.reply(ctx, chatID, invalidNotice)
		return
	}

	switch cmd {
	case "/add":
		if len(args) != 2 {
			d.reply(ctx, chatID, "Usage: /add <title> <phone>")
			return
		}
		if reply := d.flow.Begin(ctx, chatID, args[0], args[1]); reply != "" {
			d.reply(ctx, chatID, reply)
		}
	case "/cancel":
		d.reply(ctx, chatID, d.flow.Cancel(chatID))
	case "/list":
		d.sendAccountList(ctx, chatID)
	case "/rename":
		if len(args) != 2 {
			d.reply(ctx, chatID, "Usage: /rename <old> <new>")
			return
		}
		if err := d.store.Rename(ctx, args[0], args[1]); err != nil {
			d.reply(ctx, chatID, fmt.Sprintf("Error renaming account: %v", err))
			return
		}
		d.reply(ctx, chatID, fmt.Sprintf("Renamed account %q to %q", args[0], args[1]))
	case "/remove":
		if len(args) != 1 {
			d.reply(ctx, chatID, "Usage: /remove <title>")
			return
		}
		removed, err := d.store.Delete(ctx, args[0])
		if err != nil {
			d.reply(ctx, chatID, fmt.Sprintf("Error removing account: %v", err))
			return
		}
		d.reply(ctx, chatID, fmt.Sprintf("Removed account %q (%s)", removed.Title, removed.Summary()))
	default:
		d.reply(ctx, chatID, invalidNotice)
	}
}

func (d *Dispatcher) sendAccountList(ctx context.Context, chatID int64) {
	records, err := d.store.List(ctx)
	if err != nil {
		d.reply(ctx, chatID, fmt.Sprintf("Error listing accounts: %v", err))
		return
	}
	if len(records) == 0 {
		d.reply(ctx, chatID, "No accounts provisioned yet.")
		return
	}

	var b strings.Builder
	for i, record := range records {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "<b>%s</b> - %s", html.EscapeString(record.Title), html.EscapeString(record.Summary()))
	}
	d.send(ctx, chatID, b.String(), &telegram.SendMessageOptions{ParseMode: "HTML"})
}

func (d *Dispatcher) sendOffersOverview(ctx context.Context, chatID int64) {
	entries := d.cache.Snapshot()
	if len(entries) == 0 {
		d.reply(ctx, chatID, "No offers cached yet. Run /sync first.")
		return
	}

	var b strings.Builder
	b.WriteString("Current offers:\n\n")
	titles := make([]string, 0, len(entries))
	for _, e := range entries {
		titles = append(titles, e.Title)
		fmt.Fprintf(&b, "%s:\n", e.Title)
		for _, o := range e.Offers {
			b.WriteString(o.ShortLine())
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}

	d.send(ctx, chatID, b.String(), &telegram.SendMessageOptions{
		ReplyMarkup: accountsKeyboard(titles),
	})
}

func (d *Dispatcher) handleCallback(ctx context.Context, q *telegram.CallbackQuery) {
	if err := d.sender.AnswerCallbackQuery(ctx, q.ID); err != nil {
		slog.Warn("answer callback query failed", "error", err)
	}

	chatID := q.From.ID
	title := q.Data

	record, err := d.store.Get(ctx, title)
	if err != nil {
		d.reply(ctx, chatID, fmt.Sprintf("Unknown account %q.", title))
		return
	}

	accountOffers, ok := d.cache.ForAccount(title)
	if !ok || len(accountOffers) == 0 {
		d.reply(ctx, chatID, fmt.Sprintf("No cached offers for %q. Run /sync first.", title))
		return
	}

	for _, offer := range accountOffers {
		d.sendOffer(ctx, chatID, offer)
	}

	link := fmt.Sprintf("<a href=\"%s%s\">View card \U0001F4B3</a>", d.eanFrontend, record.CardNumber)
	d.send(ctx, chatID, link, &telegram.SendMessageOptions{ParseMode: "HTML"})
}

func (d *Dispatcher) sendOffer(ctx context.Context, chatID int64, offer domain.Offer) {
	caption := fmt.Sprintf("<b>%s</b>\n<code>%s</code>\n%s\n%s -> %s\n%s -> %s",
		html.EscapeString(offer.Name),
		html.EscapeString(offer.Details),
		html.EscapeString(offer.Limit),
		html.EscapeString(offer.RegularPrice), html.EscapeString(offer.OfferPrice),
		html.EscapeString(offer.RegularPriceUnit), html.EscapeString(offer.OfferPriceUnit),
	)

	if offer.ImageURL != "" {
		photo, err := d.fetchImage(ctx, d.cdnRoot+offer.ImageURL)
		if err != nil {
			slog.Warn("fetch offer image failed", "offer", offer.ID, "error", err)
		} else {
			if err := d.sender.SendPhoto(ctx, chatID, photo, caption, "HTML"); err != nil {
				slog.Warn("send offer photo failed", "offer", offer.ID, "error", err)
			}
			return
		}
	}
	d.send(ctx, chatID, caption, &telegram.SendMessageOptions{ParseMode: "HTML"})
}

func (d *Dispatcher) fetchImage(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build image request: %w", err)
	}
	resp, err := d.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get image: unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return data, nil
}

func (d *Dispatcher) reply(ctx context.Context, chatID int64, text string) {
	d.send(ctx, chatID, text, nil)
}

func (d *Dispatcher) send(ctx context.Context, chatID int64, text string, opts *telegram.SendMessageOptions) {
	if err := d.sender.SendMessage(ctx, chatID, text, opts); err != nil {
		slog.Warn("send message failed", "chat_id", chatID, "error", err)
	}
}

// accountsKeyboard lays account titles out as callback buttons, two per row.
func accountsKeyboard(titles []string) *telegram.InlineKeyboardMarkup {
	var rows [][]telegram.InlineKeyboardButton
	for i := 0; i < len(titles); i += 2 {
		end := i + 2
		if end > len(titles) {
			end = len(titles)
		}
		var row []telegram.InlineKeyboardButton
		for _, title := range titles[i:end] {
			row = append(row, telegram.InlineKeyboardButton{Text: title, CallbackData: title})
		}
		rows = append(rows, row)
	}
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: rows}
}

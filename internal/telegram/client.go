package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"
)

const defaultAPIRoot = "https://api.telegram.org"

// Client calls the Telegram Bot API. It is safe for concurrent use.
type Client struct {
	token   string
	apiRoot string
	http    *http.Client
}

// NewClient creates a Bot API client for the given bot token. The HTTP
// timeout leaves headroom over the long-poll timeout used by GetUpdates.
func NewClient(token string) *Client {
	return NewClientWithRoot(token, defaultAPIRoot)
}

// NewClientWithRoot creates a client against a non-default API root. Tests
// point this at a local server.
func NewClientWithRoot(token, apiRoot string) *Client {
	return &Client{
		token:   token,
		apiRoot: apiRoot,
		http:    &http.Client{Timeout: 90 * time.Second},
	}
}

type apiEnvelope struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

// GetUpdates long-polls for updates after offset for up to timeout seconds.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error) {
	params := struct {
		Offset  int64 `json:"offset"`
		Timeout int   `json:"timeout"`
	}{Offset: offset, Timeout: timeout}

	var updates []Update
	if err := c.call(ctx, "getUpdates", params, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// SendMessageOptions are the optional sendMessage fields this bot uses.
type SendMessageOptions struct {
	ParseMode   string
	ReplyMarkup *InlineKeyboardMarkup
}

// SendMessage sends text to a chat.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, opts *SendMessageOptions) error {
	params := struct {
		ChatID      int64                 `json:"chat_id"`
		Text        string                `json:"text"`
		ParseMode   string                `json:"parse_mode,omitempty"`
		ReplyMarkup *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
	}{ChatID: chatID, Text: text}
	if opts != nil {
		params.ParseMode = opts.ParseMode
		params.ReplyMarkup = opts.ReplyMarkup
	}
	return c.call(ctx, "sendMessage", params, nil)
}

// SendPhoto uploads photo bytes to a chat with an optional caption.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, photo []byte, caption, parseMode string) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
		return fmt.Errorf("write chat_id field: %w", err)
	}
	if caption != "" {
		if err := mw.WriteField("caption", caption); err != nil {
			return fmt.Errorf("write caption field: %w", err)
		}
	}
	if parseMode != "" {
		if err := mw.WriteField("parse_mode", parseMode); err != nil {
			return fmt.Errorf("write parse_mode field: %w", err)
		}
	}
	fw, err := mw.CreateFormFile("photo", "photo.jpg")
	if err != nil {
		return fmt.Errorf("create photo part: %w", err)
	}
	if _, err := fw.Write(photo); err != nil {
		return fmt.Errorf("write photo part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL("sendPhoto"), &body)
	if err != nil {
		return fmt.Errorf("build sendPhoto request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	return c.do(req, "sendPhoto", nil)
}

// AnswerCallbackQuery acknowledges a button press so the client stops
// showing a progress indicator.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID string) error {
	params := struct {
		CallbackQueryID string `json:"callback_query_id"`
	}{CallbackQueryID: callbackID}
	return c.call(ctx, "answerCallbackQuery", params, nil)
}

// SetWebhook registers publicURL as the update webhook, guarded by secret.
func (c *Client) SetWebhook(ctx context.Context, publicURL, secret string) error {
	params := struct {
		URL         string `json:"url"`
		SecretToken string `json:"secret_token,omitempty"`
	}{URL: publicURL, SecretToken: secret}
	return c.call(ctx, "setWebhook", params, nil)
}

// DeleteWebhook removes a previously registered webhook so long polling can
// take over.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	return c.call(ctx, "deleteWebhook", struct{}{}, nil)
}

func (c *Client) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.apiRoot, c.token, method)
}

func (c *Client) call(ctx context.Context, method string, params, out any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode %s params: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(method), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, method, out)
}

func (c *Client) do(req *http.Request, method string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}

	var env apiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if !env.OK {
		return fmt.Errorf("%s rejected: %s", method, env.Description)
	}
	if out != nil {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}

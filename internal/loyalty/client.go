// Package loyalty implements the client for the loyalty backend's
// screen-service protocol: SMS-code onboarding, login, registration and
// promotional offer retrieval. The protocol is reverse-engineered from a
// specific mobile-app backend revision, so envelope shapes, header names
// and cookie handling must stay byte-compatible with it.
package loyalty

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"promobot/internal/domain"
)

// viewName is the fixed screen identifier the backend expects on every call.
const viewName = "RegistrationFlow.OnBoarding"

// offersCacheEpoch is the constant cache marker the mobile app sends to force
// a full offer list instead of a delta.
const offersCacheEpoch = "2022-01-01T10:10:10.101Z"

const (
	cookieSessionA = "nr1Users"
	cookieSessionB = "nr2Users"
)

// Step is the backend's verdict on how onboarding continues for a phone
// number after SMS verification.
type Step string

const (
	StepNewAccount    Step = "NewAccount"
	StepAccountExists Step = "AccountExists"
)

// Config holds the backend coordinates and per-operation API versions. All
// values come from configuration; the backend rejects calls whose versions
// do not match the app revision it expects.
type Config struct {
	APIRoot                 string
	BrandName               string
	AnonymousCSRF           string
	ModuleVersion           string
	SMSAPIVersion           string
	NextStepAPIVersion      string
	LoginAPIVersion         string
	CreateAccountAPIVersion string
	OfferSyncAPIVersion     string
	LegalDocumentIDs        []string
	RegisterLocale          string
	RegisterStoreID         string
	Timeout                 time.Duration
}

// Client issues protocol operations against the loyalty backend. It holds no
// mutable state and is safe to share across conversations. Operations are
// attempted exactly once; retry is a caller decision.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient creates a protocol client from the given configuration.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
	}
}

// RequestSMSCode asks the backend to text a one-time code to phone. A nil
// return means the SMS was sent and the number is not blocked; otherwise the
// error is *BlockedError, *SendFailedError or a transport failure.
func (c *Client) RequestSMSCode(ctx context.Context, phone string) error {
	var data smsCodeData
	_, err := c.call(ctx, c.actionPath("Login", "ActionDoSendSmsCode"), c.cfg.SMSAPIVersion,
		domain.SessionCredentials{}, smsCodeParams{PhoneNumber: phone}, &data)
	if err != nil {
		return err
	}
	switch {
	case data.BlockedInMinutes > 0:
		return &BlockedError{Minutes: data.BlockedInMinutes}
	case data.IsBlocked:
		return &BlockedError{}
	case !data.IsSmsSent:
		return &SendFailedError{Reason: data.ErrorMessage}
	}
	return nil
}

// ComputeNextStep asks the backend whether phone belongs to an existing
// account or needs registration.
func (c *Client) ComputeNextStep(ctx context.Context, phone string) (Step, error) {
	var data nextStepData
	_, err := c.call(ctx, c.actionPath("Login", "ActionGetNextStep"), c.cfg.NextStepAPIVersion,
		domain.SessionCredentials{}, nextStepParams{PhoneNumber: phone}, &data)
	if err != nil {
		return "", err
	}
	switch data.NextStep {
	case string(StepNewAccount):
		return StepNewAccount, nil
	case string(StepAccountExists):
		return StepAccountExists, nil
	default:
		return "", &UnrecognizedStepError{Step: data.NextStep}
	}
}

// Login exchanges phone and SMS code for an authenticated session. The
// session tokens arrive as cookies on the response and the CSRF token is
// embedded percent-encoded inside the second one. On any failure no partial
// record is returned.
func (c *Client) Login(ctx context.Context, title, phone, code string) (domain.AccountRecord, error) {
	var data loginData
	header, err := c.call(ctx, c.actionPath("Login", "ActionLogin"), c.cfg.LoginAPIVersion,
		domain.SessionCredentials{}, loginParams{PhoneNumber: phone, SmsCode: code}, &data)
	if err != nil {
		return domain.AccountRecord{}, err
	}

	tokenA, ok := firstCookieValue(header, cookieSessionA)
	if !ok {
		return domain.AccountRecord{}, &MissingCookieError{Name: cookieSessionA}
	}
	tokenB, ok := firstCookieValue(header, cookieSessionB)
	if !ok {
		return domain.AccountRecord{}, &MissingCookieError{Name: cookieSessionB}
	}

	decoded, err := url.PathUnescape(tokenB)
	if err != nil {
		return domain.AccountRecord{}, fmt.Errorf("decode %s cookie: %w", cookieSessionB, err)
	}
	csrf, ok := extractCSRFToken(decoded)
	if !ok {
		return domain.AccountRecord{}, ErrCSRFNotFound
	}

	return domain.AccountRecord{
		Title:              title,
		PhoneNumber:        phone,
		CardNumber:         data.CardNumber,
		ExternalCustomerID: data.ExternalCustomerID,
		AuthToken:          data.AuthToken,
		Credentials: domain.SessionCredentials{
			SessionTokenA: tokenA,
			SessionTokenB: tokenB,
			CSRFToken:     csrf,
		},
	}, nil
}

// Register creates a new backend account for phone under the given display
// name, accepting the configured legal documents. Registration yields no
// session; a Login call must follow to obtain credentials.
func (c *Client) Register(ctx context.Context, phone, code, displayName string) error {
	_, err := c.call(ctx, c.actionPath("Login", "ActionCreateAccount"), c.cfg.CreateAccountAPIVersion,
		domain.SessionCredentials{}, registerParams{
			PhoneNumber:      phone,
			SmsCode:          code,
			Name:             displayName,
			Locale:           c.cfg.RegisterLocale,
			StoreID:          c.cfg.RegisterStoreID,
			LegalDocumentIDs: c.cfg.LegalDocumentIDs,
		}, nil)
	return err
}

// GetOffers fetches the promotional offer list visible to the account behind
// creds. Offers without a name are dropped.
func (c *Client) GetOffers(ctx context.Context, creds domain.SessionCredentials) ([]domain.Offer, error) {
	var data offerData
	_, err := c.call(ctx, c.actionPath("Sync", "ActionServerDataSync_2_J4y"), c.cfg.OfferSyncAPIVersion,
		creds, offerParams{J4yCacheRefresh: offersCacheEpoch}, &data)
	if err != nil {
		return nil, err
	}

	offers := make([]domain.Offer, 0, len(data.J4y.List))
	for _, e := range data.J4y.List {
		if e.Name == "" {
			continue
		}
		offers = append(offers, domain.Offer{
			ID:               e.OfferIDExt,
			Name:             e.Name,
			Details:          fmt.Sprintf("%s;%s\n%s;%s", e.Description, e.PromoDetails, e.TagTopLine, e.TagBottomLine),
			Limit:            e.Limits,
			ImageURL:         firstNonEmpty(e.FullScreenImageURL, e.ImageURL, e.ThumbURL),
			PromotionTime:    e.PromotionTime,
			RegularPrice:     e.RegularPrice,
			RegularPriceUnit: e.RegularPricePerUnit,
			OfferPrice:       e.PromoPrice,
			OfferPriceUnit:   e.PricePerUnit,
			DiscountPercent:  e.Discount,
		})
	}
	return offers, nil
}

func (c *Client) actionPath(screen, action string) string {
	return fmt.Sprintf("%s_%s/%s", c.cfg.BrandName, screen, action)
}

// call posts one envelope to the backend and decodes the data section into
// out (skipped when out is nil). It returns the response headers so login
// can scan Set-Cookie. Zero-value credentials produce an anonymous call
// signed with the configured anonymous CSRF token and empty cookies.
func (c *Client) call(ctx context.Context, path, apiVersion string, creds domain.SessionCredentials, params, out any) (http.Header, error) {
	body, err := json.Marshal(apiRequest{
		VersionInfo: requestVersionInfo{
			ModuleVersion: c.cfg.ModuleVersion,
			APIVersion:    apiVersion,
		},
		ViewName:        viewName,
		InputParameters: params,
	})
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIRoot+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", path, err)
	}

	csrf := creds.CSRFToken
	if !creds.Authenticated() {
		csrf = c.cfg.AnonymousCSRF
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("x-csrftoken", csrf)
	req.Header.Set("Cookie", fmt.Sprintf("%s=%s; %s=%s;",
		cookieSessionA, creds.SessionTokenA, cookieSessionB, creds.SessionTokenB))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("post %s: unexpected status %d", path, resp.StatusCode)
	}

	var env apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", path, err)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, fmt.Errorf("decode %s data: %w", path, err)
		}
	}
	return resp.Header, nil
}

// firstCookieValue scans Set-Cookie headers for the first cookie with the
// given name and returns its raw (still percent-encoded) value.
func firstCookieValue(h http.Header, name string) (string, bool) {
	for _, raw := range h.Values("Set-Cookie") {
		pair, _, _ := strings.Cut(raw, ";")
		k, v, ok := strings.Cut(pair, "=")
		if ok && strings.TrimSpace(k) == name {
			return v, true
		}
	}
	return "", false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Package onboarding drives the multi-turn account provisioning
// conversation: request an SMS code, collect it, then either log in to an
// existing account or register a new one and log in. Each chat session owns
// exactly one conversation state; failures roll the session back to idle and
// are reported as operator-facing messages.
package onboarding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"promobot/internal/domain"
	"promobot/internal/loyalty"
)

// Provisioner is the protocol surface the flow needs from the loyalty
// client.
type Provisioner interface {
	RequestSMSCode(ctx context.Context, phone string) error
	ComputeNextStep(ctx context.Context, phone string) (loyalty.Step, error)
	Login(ctx context.Context, title, phone, code string) (domain.AccountRecord, error)
	Register(ctx context.Context, phone, code, displayName string) error
}

// AccountSink receives completed account records.
type AccountSink interface {
	Put(ctx context.Context, record domain.AccountRecord) error
}

type session struct {
	state conversationState
	// attempt tags the current provisioning attempt. Network results are
	// only applied if the token still matches; Cancel and Begin rotate it
	// so late results from a superseded attempt are discarded.
	attempt string
}

// Flow holds the conversation state machine for all chats. Methods that hit
// the network release the lock around the call and re-validate the attempt
// token before applying the result.
type Flow struct {
	client   Provisioner
	accounts AccountSink

	mu       sync.Mutex
	sessions map[int64]*session
}

// New creates a Flow backed by the given protocol client and account sink.
func New(client Provisioner, accounts AccountSink) *Flow {
	return &Flow{
		client:   client,
		accounts: accounts,
		sessions: make(map[int64]*session),
	}
}

// Begin starts provisioning an account titled title for phone in the given
// chat. It refuses when an onboarding is already in progress there. The
// returned string is the operator-facing reply; an empty string means the
// attempt was cancelled while the SMS request was in flight and nothing
// should be shown.
func (f *Flow) Begin(ctx context.Context, chatID int64, title, phone string) string {
	f.mu.Lock()
	s := f.session(chatID)
	if _, idle := s.state.(stateIdle); !idle {
		f.mu.Unlock()
		return "Another onboarding is already in progress. Send /cancel to abort it first."
	}
	attempt := uuid.NewString()
	s.attempt = attempt
	f.mu.Unlock()

	if err := f.client.RequestSMSCode(ctx, phone); err != nil {
		if !f.transition(chatID, attempt, stateIdle{}) {
			return ""
		}
		return renderError(err)
	}
	if !f.transition(chatID, attempt, stateAwaitingSMSCode{title: title, phone: phone}) {
		return ""
	}
	return fmt.Sprintf("SMS code sent to %s. Reply with the code you received.", phone)
}

// HandleText feeds a text message into the chat's conversation. The second
// return value reports whether the message belonged to an active onboarding;
// when false the caller is free to treat it as unrelated chatter.
func (f *Flow) HandleText(ctx context.Context, chatID int64, text string) (string, bool) {
	f.mu.Lock()
	s := f.session(chatID)
	state := s.state
	attempt := s.attempt
	f.mu.Unlock()

	switch st := state.(type) {
	case stateAwaitingSMSCode:
		return f.handleSMSCode(ctx, chatID, attempt, st, strings.TrimSpace(text)), true
	case stateAwaitingDisplayName:
		return f.handleDisplayName(ctx, chatID, attempt, st, strings.TrimSpace(text)), true
	default:
		return "", false
	}
}

// HandleNonText re-prompts when the chat is mid-onboarding and the operator
// sent something that is not text. No transition happens.
func (f *Flow) HandleNonText(chatID int64) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.session(chatID).state.(type) {
	case stateAwaitingSMSCode:
		return "Please reply with the SMS code as a plain text message.", true
	case stateAwaitingDisplayName:
		return "Please reply with a display name as a plain text message.", true
	default:
		return "", false
	}
}

// Cancel aborts any in-progress onboarding for the chat. Cancelling an idle
// chat is a no-op.
func (f *Flow) Cancel(chatID int64) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := f.session(chatID)
	if _, idle := s.state.(stateIdle); idle {
		return "Nothing to cancel."
	}
	s.state = stateIdle{}
	s.attempt = uuid.NewString()
	return "Onboarding cancelled."
}

func (f *Flow) handleSMSCode(ctx context.Context, chatID int64, attempt string, st stateAwaitingSMSCode, code string) string {
	step, err := f.client.ComputeNextStep(ctx, st.phone)
	if err != nil {
		if !f.transition(chatID, attempt, stateIdle{}) {
			return ""
		}
		return renderError(err)
	}

	switch step {
	case loyalty.StepNewAccount:
		next := stateAwaitingDisplayName{title: st.title, phone: st.phone, smsCode: code}
		if !f.transition(chatID, attempt, next) {
			return ""
		}
		return "This phone number has no account yet. Reply with a display name to register."
	case loyalty.StepAccountExists:
		return f.loginAndStore(ctx, chatID, attempt, st.title, st.phone, code)
	default:
		if !f.transition(chatID, attempt, stateIdle{}) {
			return ""
		}
		return renderError(&loyalty.UnrecognizedStepError{Step: string(step)})
	}
}

func (f *Flow) handleDisplayName(ctx context.Context, chatID int64, attempt string, st stateAwaitingDisplayName, name string) string {
	if err := f.client.Register(ctx, st.phone, st.smsCode, name); err != nil {
		if !f.transition(chatID, attempt, stateIdle{}) {
			return ""
		}
		return renderError(err)
	}
	return f.loginAndStore(ctx, chatID, attempt, st.title, st.phone, st.smsCode)
}

func (f *Flow) loginAndStore(ctx context.Context, chatID int64, attempt, title, phone, code string) string {
	record, err := f.client.Login(ctx, title, phone, code)
	if err != nil {
		if !f.transition(chatID, attempt, stateIdle{}) {
			return ""
		}
		return renderError(err)
	}

	// The transition happens before the store write: a cancelled attempt
	// must not persist anything.
	if !f.transition(chatID, attempt, stateIdle{}) {
		return ""
	}
	if err := f.accounts.Put(ctx, record); err != nil {
		return renderError(fmt.Errorf("save account %q: %w", title, err))
	}
	return fmt.Sprintf("Account %q provisioned. %s", title, record.Summary())
}

// session returns the chat's session, creating an idle one on first touch.
// Callers must hold f.mu.
func (f *Flow) session(chatID int64) *session {
	s := f.sessions[chatID]
	if s == nil {
		s = &session{state: stateIdle{}}
		f.sessions[chatID] = s
	}
	return s
}

// transition installs next as the chat's state if the attempt token still
// matches. A mismatch means Cancel or a new Begin won the race; the caller
// discards its result.
func (f *Flow) transition(chatID int64, attempt string, next conversationState) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := f.sessions[chatID]
	if s == nil || s.attempt != attempt {
		return false
	}
	s.state = next
	return true
}

func renderError(err error) string {
	var blocked *loyalty.BlockedError
	var sendFailed *loyalty.SendFailedError
	var unrecognized *loyalty.UnrecognizedStepError
	var missingCookie *loyalty.MissingCookieError

	switch {
	case errors.As(err, &blocked):
		if blocked.Minutes > 0 {
			return fmt.Sprintf("The backend blocked this phone number for %d minutes. Try again later.", blocked.Minutes)
		}
		return "The backend blocked this phone number indefinitely."
	case errors.As(err, &sendFailed):
		if sendFailed.Reason != "" {
			return fmt.Sprintf("The backend could not send the SMS code: %s", sendFailed.Reason)
		}
		return "The backend could not send the SMS code."
	case errors.As(err, &unrecognized):
		return fmt.Sprintf("The backend answered with an unknown onboarding step %q. The protocol may have changed.", unrecognized.Step)
	case errors.As(err, &missingCookie), errors.Is(err, loyalty.ErrCSRFNotFound):
		return fmt.Sprintf("Login did not produce a usable session (%v). The backend protocol may have drifted.", err)
	default:
		return fmt.Sprintf("Request failed: %v", err)
	}
}

package loyalty

import (
	"errors"
	"fmt"
)

// ErrCSRFNotFound is returned when the session cookie decodes cleanly but
// carries no crf fragment. It signals backend protocol drift rather than a
// transient transport fault.
var ErrCSRFNotFound = errors.New("csrf token not found in session cookie")

// BlockedError reports that the backend refused to send an SMS code because
// the phone number is blocked. Minutes is 0 when the backend set the blocked
// flag without a duration.
type BlockedError struct {
	Minutes int
}

func (e *BlockedError) Error() string {
	if e.Minutes > 0 {
		return fmt.Sprintf("phone number blocked for %d minutes", e.Minutes)
	}
	return "phone number blocked indefinitely"
}

// SendFailedError reports that the backend could not send the SMS code.
type SendFailedError struct {
	Reason string
}

func (e *SendFailedError) Error() string {
	if e.Reason == "" {
		return "sms code was not sent"
	}
	return fmt.Sprintf("sms code was not sent: %s", e.Reason)
}

// UnrecognizedStepError reports an unexpected next-step discriminator from
// the backend.
type UnrecognizedStepError struct {
	Step string
}

func (e *UnrecognizedStepError) Error() string {
	return fmt.Sprintf("unrecognized onboarding step %q", e.Step)
}

// MissingCookieError reports that a login response lacked one of the two
// session cookies.
type MissingCookieError struct {
	Name string
}

func (e *MissingCookieError) Error() string {
	return fmt.Sprintf("login response missing %s cookie", e.Name)
}

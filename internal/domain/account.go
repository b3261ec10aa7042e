// Package domain contains core domain types for promobot.
package domain

import "fmt"

// SessionCredentials carries the backend session cookie pair and the CSRF
// token recovered from the second cookie. The zero value signs requests
// anonymously; a populated value is only ever produced by a successful login
// and is never refreshed in place.
type SessionCredentials struct {
	SessionTokenA string `json:"session_token_a"`
	SessionTokenB string `json:"session_token_b"`
	CSRFToken     string `json:"csrf_token"`
}

// Authenticated reports whether the credentials can sign an authenticated
// request. All three fields must be present.
func (c SessionCredentials) Authenticated() bool {
	return c.SessionTokenA != "" && c.SessionTokenB != "" && c.CSRFToken != ""
}

// AccountRecord is a provisioned loyalty account, stored under its
// operator-chosen title. Title uniqueness is enforced by the store.
type AccountRecord struct {
	Title              string             `json:"title"`
	PhoneNumber        string             `json:"phone_number"`
	CardNumber         string             `json:"card_number"`
	ExternalCustomerID string             `json:"external_customer_id"`
	AuthToken          string             `json:"auth_token"`
	Credentials        SessionCredentials `json:"credentials"`
}

// Summary returns a short single-line description used by account listings.
func (a AccountRecord) Summary() string {
	return fmt.Sprintf("phone: %s; card: %s", a.PhoneNumber, a.CardNumber)
}

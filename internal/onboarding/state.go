package onboarding

// conversationState is the per-chat onboarding position. Exactly one variant
// is live per conversation; the variants carry only the data their stage
// needs.
type conversationState interface {
	conversationState()
}

type stateIdle struct{}

type stateAwaitingSMSCode struct {
	title string
	phone string
}

type stateAwaitingDisplayName struct {
	title   string
	phone   string
	smsCode string
}

func (stateIdle) conversationState()                {}
func (stateAwaitingSMSCode) conversationState()     {}
func (stateAwaitingDisplayName) conversationState() {}

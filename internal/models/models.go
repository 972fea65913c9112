package models

import "time"

type IntentStatus string

const (
	IntentCreated      IntentStatus = "created"
	IntentSent         IntentStatus = "sent"
	IntentAcknowledged IntentStatus = "acknowledged"
	IntentResolved     IntentStatus = "resolved"
	IntentFailed       IntentStatus = "failed"
	IntentExpired      IntentStatus = "expired"
)

// Terminal reports whether the status admits no further transitions.
func (s IntentStatus) Terminal() bool {
	switch s {
	case IntentResolved, IntentFailed, IntentExpired:
		return true
	}
	return false
}

type IntentOutcome string

const (
	OutcomeSuccess IntentOutcome = "success"
	OutcomeFailure IntentOutcome = "failure"
)

type Account struct {
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	APIToken     string    `json:"-"`
	Credits      int       `json:"credits"`
	Subscribed   bool      `json:"subscribed"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type QAEntry struct {
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Timestamp time.Time `json:"timestamp"`
}

// PaymentIntent tracks one outbound top-up request awaiting asynchronous
// confirmation from the payment gateway. GatewayRef holds the gateway's own
// correlation identifier (CheckoutRequestID) from the synchronous accept; the
// intent ID itself travels to the gateway as the AccountReference.
type PaymentIntent struct {
	ID               string       `json:"intent_id"`
	AccountID        string       `json:"account_id"`
	Phone            string       `json:"phone"`
	Amount           int          `json:"amount"`
	RequestedCredits int          `json:"requested_credits"`
	Status           IntentStatus `json:"status"`
	GatewayRef       string       `json:"gateway_ref,omitempty"`
	ResultCode       int          `json:"result_code"`
	ResultDesc       string       `json:"result_desc,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	ResolvedAt       *time.Time   `json:"resolved_at,omitempty"`
}

// Outcome maps a terminal intent to the reconciliation outcome it carried.
// Expired intents count as failures for callers inspecting prior resolutions.
func (p *PaymentIntent) Outcome() IntentOutcome {
	if p.Status == IntentResolved {
		return OutcomeSuccess
	}
	return OutcomeFailure
}

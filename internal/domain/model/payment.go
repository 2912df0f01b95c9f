package model

import "time"

type PaymentStatus string

const (
	PaymentStatusCreated    PaymentStatus = "created"    // row exists; nothing sent to the gateway yet
	PaymentStatusPending    PaymentStatus = "pending"    // handed to gateway; awaiting outcome (also retry re-entry)
	PaymentStatusProcessing PaymentStatus = "processing" // gateway acknowledged, settlement in flight
	PaymentStatusCompleted  PaymentStatus = "completed"  // money captured
	PaymentStatusFailed     PaymentStatus = "failed"     // declined, errored or timed out
	PaymentStatusRefunded   PaymentStatus = "refunded"   // terminal; no further transitions
)

type PaymentMethod string

const (
	PaymentMethodStripe   PaymentMethod = "stripe"
	PaymentMethodPayPal   PaymentMethod = "paypal"
	PaymentMethodRazorpay PaymentMethod = "razorpay"
)

// DefaultMaxRetries is the per-transaction retry budget unless overridden.
const DefaultMaxRetries = 3

// validTransitions is the authoritative lifecycle table. The SQL guard in the
// payment repository is generated from the same pairs; IsValidTransition only
// saves callers a round trip.
var validTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusCreated:    {PaymentStatusPending, PaymentStatusProcessing, PaymentStatusFailed},
	PaymentStatusPending:    {PaymentStatusProcessing, PaymentStatusCompleted, PaymentStatusFailed},
	PaymentStatusProcessing: {PaymentStatusCompleted, PaymentStatusFailed},
	PaymentStatusCompleted:  {PaymentStatusRefunded},
	PaymentStatusFailed:     {PaymentStatusPending, PaymentStatusProcessing},
	PaymentStatusRefunded:   {},
}

// IsValidTransition reports whether from -> to is allowed by the lifecycle
// table. Exposed so UIs and admin tooling can pre-check before attempting a
// write; the write layer re-validates regardless.
func IsValidTransition(from, to PaymentStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidSources returns every status allowed to transition into to.
func ValidSources(to PaymentStatus) []PaymentStatus {
	var out []PaymentStatus
	for from, nexts := range validTransitions {
		for _, next := range nexts {
			if next == to {
				out = append(out, from)
				break
			}
		}
	}
	return out
}

// KnownPaymentStatus reports whether s is one of the lifecycle statuses.
func KnownPaymentStatus(s PaymentStatus) bool {
	_, ok := validTransitions[s]
	return ok
}

// StateTransition is one entry of the append-only transition log.
type StateTransition struct {
	From              PaymentStatus `json:"from_status"`
	To                PaymentStatus `json:"to_status"`
	Timestamp         time.Time     `json:"timestamp"`
	ExternalPaymentID string        `json:"external_payment_id,omitempty"`
	ErrorMessage      string        `json:"error_message,omitempty"`
	ErrorCode         string        `json:"error_code,omitempty"`
}

// PaymentTransaction records one attempted payment end to end.
type PaymentTransaction struct {
	ID             string  `json:"id"`              // UUID
	IdempotencyKey string  `json:"idempotency_key"` // caller-supplied or generated; unique
	UserID         string  `json:"user_id"`
	ArtistID       *string `json:"artist_id,omitempty"` // subscribable entity the payment is for, if any
	SubscriptionID *string `json:"subscription_id,omitempty"`

	Amount        int64         `json:"amount"`   // minor currency units, always > 0
	Currency      string        `json:"currency"` // ISO code
	PaymentMethod PaymentMethod `json:"payment_method"`

	Status           PaymentStatus     `json:"status"`
	PreviousStatus   PaymentStatus     `json:"previous_status,omitempty"`
	StateTransitions []StateTransition `json:"state_transitions,omitempty"`

	// Gateway correlation; set once the gateway assigns them. Used to map
	// inbound webhook deliveries back to this row.
	ExternalPaymentID      *string `json:"external_payment_id,omitempty"`
	ExternalOrderID        *string `json:"external_order_id,omitempty"`
	ExternalSubscriptionID *string `json:"external_subscription_id,omitempty"`

	// RetryCount > 0 on a pending row means "this is a retry re-entry",
	// not a fresh attempt. There is no dedicated retrying status.
	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`

	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
	CompletedAt  *time.Time             `json:"completed_at,omitempty"`
	FailedAt     *time.Time             `json:"failed_at,omitempty"`
	RefundedAt   *time.Time             `json:"refunded_at,omitempty"`
	ErrorMessage *string                `json:"error_message,omitempty"`
	ErrorCode    *string                `json:"error_code,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"` // opaque bag, stored as JSONB
}

// StatusUpdate carries the optional context for one transition.
type StatusUpdate struct {
	ExternalPaymentID string
	ErrorMessage      string
	ErrorCode         string
	Metadata          map[string]interface{}
}

// PaymentStats aggregates transactions per status over a window.
type PaymentStats struct {
	Counts      map[PaymentStatus]int `json:"counts"`
	TotalAmount int64                 `json:"total_amount"` // completed payments only, minor units
	DaysBack    int                   `json:"days_back"`
}

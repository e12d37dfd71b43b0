package gateway

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"time"

	"payment-service/internal/models"
)

// Webhook event types sent by Monnify. Only successful-transaction
// notifications drive reconciliation; everything else is acknowledged
// and ignored.
const (
	EventSuccessfulTransaction = "SUCCESSFUL_TRANSACTION"
)

// Gateway payment statuses.
const (
	StatusPaid      = "PAID"
	StatusOverpaid  = "OVERPAID"
	StatusPartial   = "PARTIAL"
	StatusPending   = "PENDING"
	StatusFailed    = "FAILED"
	StatusReversed  = "REVERSED"
	StatusExpired   = "EXPIRED"
	StatusCancelled = "CANCELLED"
)

// paidOnLayout is the timestamp format Monnify uses in webhook payloads.
const paidOnLayout = "2006-01-02 15:04:05.0"

// WebhookEvent is the inbound webhook body. Only the fields the service
// consumes are typed; the raw body is stored verbatim alongside.
type WebhookEvent struct {
	EventType string           `json:"eventType"`
	EventData WebhookEventData `json:"eventData"`
}

type WebhookEventData struct {
	TransactionReference string          `json:"transactionReference"`
	PaymentReference     string          `json:"paymentReference"`
	AmountPaid           string          `json:"amountPaid"`
	PaymentStatus        string          `json:"paymentStatus"`
	PaidOn               string          `json:"paidOn"`
	Currency             string          `json:"currency"`
	Customer             WebhookCustomer `json:"customer"`
	MetaData             json.RawMessage `json:"metaData,omitempty"`
}

type WebhookCustomer struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// ParsePaidOn parses the event's paidOn timestamp. Falls back to
// RFC3339 and finally to the current time when the field is absent or
// unparseable, so reconciliation always has a processed timestamp.
func ParsePaidOn(paidOn string) time.Time {
	if paidOn == "" {
		return time.Now()
	}
	if t, err := time.Parse(paidOnLayout, paidOn); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, paidOn); err == nil {
		return t
	}
	return time.Now()
}

// MapStatus translates a gateway payment status into the internal
// vocabulary. Unknown statuses map to pending: an ambiguous event must
// never be marked completed or failed.
func MapStatus(external string) string {
	switch external {
	case StatusPaid, StatusOverpaid:
		return models.PaymentStatusCompleted
	case StatusFailed, StatusReversed, StatusExpired, StatusCancelled:
		return models.PaymentStatusFailed
	case StatusPending, StatusPartial:
		return models.PaymentStatusPending
	default:
		return models.PaymentStatusPending
	}
}

// IsSuccessStatus reports whether the gateway status indicates a
// received payment (drives the order-side success path).
func IsSuccessStatus(external string) bool {
	return external == StatusPaid || external == StatusOverpaid
}

// IsOrderFailureStatus reports whether the gateway status marks the
// order's payment as failed. CANCELLED deliberately stays out of this
// set: the payment record is marked failed but the order is untouched.
func IsOrderFailureStatus(external string) bool {
	return external == StatusFailed || external == StatusReversed || external == StatusExpired
}

// SignatureVerifier validates webhook payloads against the shared
// secret using HMAC-SHA512 over the raw request body.
type SignatureVerifier struct {
	secret []byte
}

// NewSignatureVerifier creates a verifier for the given shared secret.
func NewSignatureVerifier(secret string) *SignatureVerifier {
	return &SignatureVerifier{secret: []byte(secret)}
}

// Verify computes the hex-encoded HMAC-SHA512 of body and compares it
// to signature in constant time. Any anomaly (empty secret, empty
// signature, bad encoding) verifies false; this fails closed.
func (v *SignatureVerifier) Verify(body []byte, signature string) bool {
	if len(v.secret) == 0 || signature == "" {
		return false
	}

	mac := hmac.New(sha512.New, v.secret)
	if _, err := mac.Write(body); err != nil {
		return false
	}
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

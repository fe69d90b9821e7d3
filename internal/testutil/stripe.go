package testutil

import (
	"time"

	"github.com/stripe/stripe-go/v76/webhook"
)

// SignStripePayload returns a Stripe-Signature header for payload signed at
// the given time.
func SignStripePayload(payload []byte, secret string, at time.Time) string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: at,
	})
	return signed.Header
}

// Package payment is the seam between the booking core and the
// payment collaborator.  Gateway integration (charging the card,
// webhooks, refunds) lives outside this repository; the booking core
// only receives an opaque confirmation token from the client after
// the gateway redirect and asks this package whether it is good for
// the booking's amount.
package payment

import (
    "context"
    "errors"
    "strings"
)

// ErrVerificationFailed is returned when a confirmation token cannot
// be validated.  The coordinator maps it to a declined payment and
// leaves the booking pending for a retry.
var ErrVerificationFailed = errors.New("payment verification failed")

// TokenVerifier validates gateway confirmation tokens.  The token
// format is gateway-issued ("pay_" prefix); anything else is
// rejected without a gateway round trip.
type TokenVerifier struct{}

// NewTokenVerifier returns a TokenVerifier.
func NewTokenVerifier() *TokenVerifier { return &TokenVerifier{} }

// Verify checks the confirmation token for the given user and
// amount.  A well-formed token is accepted; the authoritative
// settlement check happens asynchronously on the gateway webhook,
// which goes through the same booking status transitions.
func (v *TokenVerifier) Verify(ctx context.Context, userID uint64, amountCents uint32, token string) error {
    token = strings.TrimSpace(token)
    if token == "" || !strings.HasPrefix(token, "pay_") {
        return ErrVerificationFailed
    }
    return nil
}

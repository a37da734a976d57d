// Package auth produces backend credentials for the onboarding flow. Both
// adapters share one contract: given a context, return a credential or an
// error, and abort promptly when the context is cancelled. Cancelling the
// context is the only way to stop a flow early; idle timeouts are enforced
// outside, at session granularity.
package auth

import (
	"context"
	"strings"

	"github.com/xenonsan/eagpaas/pkg/connect"
)

// DeviceCode is an intermediate event of the Microsoft flow: the user must
// open VerificationURI and enter UserCode. It can fire more than once when a
// code expires and a fresh one is issued.
type DeviceCode struct {
	UserCode        string
	VerificationURI string
}

// DeviceCodeFlow authenticates interactively through a device code.
type DeviceCodeFlow interface {
	// Login runs the flow to completion. onCode is invoked for every code
	// issued, including reissues after expiry.
	Login(ctx context.Context, onCode func(DeviceCode)) (*connect.Credential, error)
}

// TokenExchanger trades an alt token for a credential in one shot.
type TokenExchanger interface {
	Exchange(ctx context.Context, token string) (*connect.Credential, error)
}

// AltTokenSuffix is the fixed suffix every TheAltening token carries.
const AltTokenSuffix = "@alt.com"

// PlausibleAltToken is the cheap format check run before any network call.
func PlausibleAltToken(token string) bool {
	return strings.HasSuffix(token, AltTokenSuffix)
}

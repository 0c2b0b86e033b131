// Package webhook authenticates LiveKit's asynchronous room-lifecycle
// callbacks and fans the validated events out to logging and the
// agent-notification seam.
package webhook

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	lkwebhook "github.com/livekit/protocol/webhook"

	"voice-gateway/internal/config"
)

var (
	// ErrNotConfigured means the shared webhook secret is absent.
	ErrNotConfigured = errors.New("webhook service is not configured")
	// ErrUnauthorized covers every verification failure. The vendor-side
	// rejection reason is deliberately not distinguished for callers.
	ErrUnauthorized = errors.New("invalid webhook signature")
)

// AuthHeader is the header LiveKit places the signature token in.
const AuthHeader = "Authorization"

// EventReceiver authenticates an inbound callback and returns the decoded
// event. Implemented by Receiver; handlers depend on the interface so tests
// can substitute verification.
type EventReceiver interface {
	Receive(r *http.Request) (*livekit.WebhookEvent, error)
}

// Receiver delegates byte-exact signature verification to the LiveKit SDK.
// The signature covers the raw request body, so the body must not be read
// before Receive.
type Receiver struct {
	cfg      config.LiveKitConfig
	provider auth.KeyProvider
}

func NewReceiver(cfg config.LiveKitConfig) *Receiver {
	r := &Receiver{cfg: cfg}
	if cfg.APIKey != "" && cfg.APISecret != "" {
		r.provider = auth.NewSimpleKeyProvider(cfg.APIKey, cfg.APISecret)
	}
	return r
}

// Receive implements EventReceiver.
func (rc *Receiver) Receive(r *http.Request) (*livekit.WebhookEvent, error) {
	if rc.provider == nil {
		return nil, ErrNotConfigured
	}

	if r.Header.Get(AuthHeader) == "" {
		return nil, fmt.Errorf("%w: missing authorization header", ErrUnauthorized)
	}

	event, err := lkwebhook.ReceiveWebhookEvent(r, rc.provider)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return event, nil
}

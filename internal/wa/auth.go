package wa

import (
	"context"
	"errors"
	"fmt"

	"github.com/matheus3301/wppbridge/internal/bus"
	"go.mau.fi/whatsmeow"
	"go.uber.org/zap"
)

// ErrAlreadyLoggedIn is returned when pairing is requested for a paired device.
var ErrAlreadyLoggedIn = errors.New("already logged in")

// AuthEventType enumerates auth event types.
type AuthEventType string

const (
	AuthEventQRCode        AuthEventType = "qr_code"
	AuthEventAuthenticated AuthEventType = "authenticated"
	AuthEventAuthFailed    AuthEventType = "auth_failed"
	AuthEventTimeout       AuthEventType = "timeout"
)

// AuthEvent is one step of the pairing flow. It is also the bus payload of
// session.qr_generated, session.authenticated and session.auth_failed.
type AuthEvent struct {
	Type    AuthEventType `json:"type"`
	QRCode  string        `json:"qr_code,omitempty"`
	Message string        `json:"message,omitempty"`
}

// StartQRAuth connects an unpaired client and streams the pairing flow.
// Each step is published on the bus and sent on the returned channel, which
// closes when pairing succeeds, fails or times out.
func (a *Adapter) StartQRAuth(ctx context.Context) (<-chan AuthEvent, error) {
	if a.IsLoggedIn() {
		return nil, ErrAlreadyLoggedIn
	}
	// GetQRChannel must be called before Connect.
	qrChan, err := a.client.GetQRChannel(ctx)
	if err != nil {
		return nil, fmt.Errorf("get QR channel: %w", err)
	}

	out := make(chan AuthEvent, 10)
	go func() {
		defer close(out)

		if err := a.Connect(); err != nil {
			a.emitAuth(out, AuthEvent{Type: AuthEventAuthFailed, Message: err.Error()})
			return
		}
		for item := range qrChan {
			evt, done := authEventFromQR(item)
			if evt.Type == "" {
				continue
			}
			a.emitAuth(out, evt)
			if done {
				return
			}
		}
	}()
	return out, nil
}

func (a *Adapter) emitAuth(out chan<- AuthEvent, evt AuthEvent) {
	switch evt.Type {
	case AuthEventQRCode:
		a.bus.Emit(bus.KindQRGenerated, evt)
	case AuthEventAuthenticated:
		a.logger.Info("pairing succeeded")
		a.bus.Emit(bus.KindAuthenticated, evt)
	default:
		a.logger.Warn("pairing failed", zap.String("reason", evt.Message))
		a.bus.Emit(bus.KindAuthFailed, evt)
	}
	select {
	case out <- evt:
	default:
	}
}

// authEventFromQR translates a QR channel item. done is true for terminal
// items; an empty Type means the item carries nothing to report.
func authEventFromQR(item whatsmeow.QRChannelItem) (evt AuthEvent, done bool) {
	switch item.Event {
	case whatsmeow.QRChannelEventCode:
		return AuthEvent{Type: AuthEventQRCode, QRCode: item.Code}, false
	case whatsmeow.QRChannelSuccess.Event:
		return AuthEvent{Type: AuthEventAuthenticated, Message: "authenticated"}, true
	case whatsmeow.QRChannelTimeout.Event:
		return AuthEvent{Type: AuthEventTimeout, Message: "QR code timeout"}, true
	}
	if item.Error != nil {
		return AuthEvent{Type: AuthEventAuthFailed, Message: item.Error.Error()}, true
	}
	return AuthEvent{}, false
}

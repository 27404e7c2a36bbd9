package notify

import (
	"context"
	"sync"

	"github.com/matheus3301/wppbridge/internal/bus"
	"github.com/matheus3301/wppbridge/internal/status"
	"github.com/matheus3301/wppbridge/internal/wa"
	"go.uber.org/zap"
)

// LifecycleNotifier is the subset of Client used for session events.
type LifecycleNotifier interface {
	Ready(ctx context.Context) bool
	Auth(ctx context.Context, authenticated bool, reason string) bool
	QR(ctx context.Context, code string) bool
}

// Lifecycle relays session.* bus events to the backend. The bus is lossy,
// so a missed QR code or ready signal is simply superseded by the next one.
type Lifecycle struct {
	bus      *bus.Bus
	notifier LifecycleNotifier
	logger   *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewLifecycle creates a relay; it does nothing until Start.
func NewLifecycle(b *bus.Bus, n LifecycleNotifier, logger *zap.Logger) *Lifecycle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lifecycle{
		bus:      b,
		notifier: n,
		logger:   logger.With(zap.String("component", "lifecycle")),
		done:     make(chan struct{}),
	}
}

// Start subscribes and forwards until Stop or ctx is done.
func (l *Lifecycle) Start(ctx context.Context) {
	ctx, l.cancel = context.WithCancel(ctx)
	ch, unsub := l.bus.Subscribe("session.", 64)
	go func() {
		defer close(l.done)
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-ch:
				l.handle(ctx, evt)
			}
		}
	}()
}

// Stop ends forwarding and waits for the loop to exit.
func (l *Lifecycle) Stop() {
	l.once.Do(func() {
		if l.cancel == nil {
			return
		}
		l.cancel()
		<-l.done
	})
}

func (l *Lifecycle) handle(ctx context.Context, evt bus.Event) {
	switch evt.Kind {
	case bus.KindStatusChanged:
		if change, ok := evt.Payload.(status.StatusChange); ok && change.To == status.Ready {
			l.notifier.Ready(ctx)
		}
	case bus.KindQRGenerated:
		if a, ok := evt.Payload.(wa.AuthEvent); ok {
			l.notifier.QR(ctx, a.QRCode)
		}
	case bus.KindAuthenticated:
		l.notifier.Auth(ctx, true, "")
	case bus.KindAuthFailed:
		reason := ""
		if a, ok := evt.Payload.(wa.AuthEvent); ok {
			reason = a.Message
		}
		l.notifier.Auth(ctx, false, reason)
	case bus.KindLoggedOut:
		reason, _ := evt.Payload.(string)
		l.notifier.Auth(ctx, false, "logged out: "+reason)
	default:
		l.logger.Debug("ignoring session event", zap.String("kind", evt.Kind))
	}
}

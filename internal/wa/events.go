package wa

import (
	"github.com/matheus3301/wppbridge/internal/bus"
	"github.com/matheus3301/wppbridge/internal/status"
	"github.com/matheus3301/wppbridge/internal/store"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
)

// Sink receives the events that must be processed exactly once. It is
// implemented by the sync engine, which serializes them on the instance
// queue; the bus only sees observability copies.
type Sink interface {
	EnqueueMessage(m *store.Message) bool
	EnqueueStatusChange(msgID string, st store.Status) bool
	EnqueueEdit(e *Edit) bool
}

// EventHandler maps whatsmeow events to queue tasks and drives the state
// machine from connection events.
type EventHandler struct {
	instanceID string
	sink       Sink
	bus        *bus.Bus
	machine    *status.Machine
	logger     *zap.Logger
}

// NewEventHandler creates a new event handler.
func NewEventHandler(instanceID string, sink Sink, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *EventHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventHandler{
		instanceID: instanceID,
		sink:       sink,
		bus:        b,
		machine:    machine,
		logger:     logger,
	}
}

// Handle is the whatsmeow event handler function.
func (h *EventHandler) Handle(rawEvt any) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		h.handleMessage(evt)
	case *events.Receipt:
		h.handleReceipt(evt)
	case *events.Connected:
		h.logger.Info("WhatsApp connected")
		if h.machine.Is(status.AuthRequired, status.Reconnecting, status.Degraded, status.Error) {
			_ = h.machine.Transition(status.Connecting)
		}
		_ = h.machine.Transition(status.Syncing)
	case *events.OfflineSyncCompleted:
		h.logger.Info("offline sync completed", zap.Int("count", evt.Count))
		h.markReady()
	case *events.Disconnected:
		h.logger.Warn("WhatsApp disconnected")
		_ = h.machine.Transition(status.Reconnecting)
	case *events.StreamReplaced:
		h.logger.Warn("stream replaced by another client")
		_ = h.machine.Transition(status.Degraded)
	case *events.ConnectFailure:
		h.logger.Error("connect failure", zap.String("reason", evt.Reason.String()))
		_ = h.machine.Transition(status.Error)
	case *events.LoggedOut:
		h.logger.Warn("WhatsApp logged out", zap.String("reason", evt.Reason.String()))
		_ = h.machine.Transition(status.AuthRequired)
		h.bus.Emit(bus.KindLoggedOut, evt.Reason.String())
	}
}

// markReady finishes the initial sync. Either the offline-sync marker or the
// first live message gets here first.
func (h *EventHandler) markReady() {
	if h.machine.Is(status.Syncing) {
		_ = h.machine.Transition(status.Ready)
	}
}

func (h *EventHandler) handleMessage(evt *events.Message) {
	h.markReady()

	if edit, ok := ParseEdit(evt); ok {
		h.sink.EnqueueEdit(edit)
		return
	}

	m, err := ParseLiveMessage(h.instanceID, evt)
	if err != nil {
		h.logger.Warn("dropping unmappable message",
			zap.String("msg_id", evt.Info.ID), zap.Error(err))
		return
	}
	h.sink.EnqueueMessage(m)
}

// handleReceipt enqueues one status change per acknowledged message.
func (h *EventHandler) handleReceipt(evt *events.Receipt) {
	ack, ok := AckFromReceipt(evt.Type)
	if !ok {
		return
	}
	st := StatusFromAck(ack)
	for _, id := range evt.MessageIDs {
		h.sink.EnqueueStatusChange(id, st)
	}
}

// Package sync keeps local message rows and the remote backend in agreement.
//
// The Engine turns capability events into serialized queue tasks: persist
// first with the sync flags cleared, then make one forwarding attempt and
// set the flags only when the backend acknowledged. The Sweeper is the only
// retry path and picks up whatever the Engine left unsynced.
package sync

import (
	"context"
	"fmt"

	"github.com/matheus3301/wppbridge/internal/bus"
	"github.com/matheus3301/wppbridge/internal/queue"
	"github.com/matheus3301/wppbridge/internal/store"
	"github.com/matheus3301/wppbridge/internal/wa"
	"go.uber.org/zap"
)

// Notifier forwards rows to the backend. Both calls return true only when
// the backend acknowledged.
type Notifier interface {
	NotifyNewMessage(ctx context.Context, m *store.Message) bool
	NotifyStatusChange(ctx context.Context, msgID string, st store.Status) bool
}

// Engine implements wa.Sink on top of the instance queue.
type Engine struct {
	instanceID string
	db         *store.DB
	queue      *queue.Queue
	notifier   Notifier
	bus        *bus.Bus
	logger     *zap.Logger
}

var _ wa.Sink = (*Engine)(nil)

// NewEngine creates a new sync engine. The queue is owned by the caller,
// which starts and stops it.
func NewEngine(instanceID string, db *store.DB, q *queue.Queue, n Notifier, b *bus.Bus, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		instanceID: instanceID,
		db:         db,
		queue:      q,
		notifier:   n,
		bus:        b,
		logger:     logger.With(zap.String("component", "engine")),
	}
}

// EnqueueMessage schedules a new or re-delivered message.
func (e *Engine) EnqueueMessage(m *store.Message) bool {
	return e.queue.Enqueue(queue.KindMessage, m.MsgID, func(ctx context.Context) error {
		return e.ProcessMessage(ctx, m)
	})
}

// EnqueueStatusChange schedules a delivery status change.
func (e *Engine) EnqueueStatusChange(msgID string, st store.Status) bool {
	return e.queue.Enqueue(queue.KindStatus, msgID, func(ctx context.Context) error {
		return e.ProcessStatusChange(ctx, msgID, st)
	})
}

// EnqueueEdit schedules a body edit.
func (e *Engine) EnqueueEdit(ed *wa.Edit) bool {
	return e.queue.Enqueue(queue.KindEdit, ed.MsgID, func(ctx context.Context) error {
		return e.ProcessEdit(ctx, ed)
	})
}

// ProcessMessage persists m and forwards it once. A failed forward leaves
// the row unsynced for the sweeper and is not an error.
func (e *Engine) ProcessMessage(ctx context.Context, m *store.Message) error {
	if m.InstanceID == "" {
		m.InstanceID = e.instanceID
	}
	if err := e.db.UpsertMessage(m); err != nil {
		return fmt.Errorf("persist message %s: %w", m.MsgID, err)
	}
	e.bus.Emit(bus.KindMessageUpserted, refOf(m))

	if !e.notifier.NotifyNewMessage(ctx, m) {
		return nil
	}
	return settleMessage(e.db, e.bus, m.MsgID, m.Status)
}

// ProcessStatusChange records st for msgID and forwards it once. A status
// for a message that was never stored is ignored.
func (e *Engine) ProcessStatusChange(ctx context.Context, msgID string, st store.Status) error {
	updated, err := e.db.UpdateMessage(msgID, store.MessageUpdate{
		Status:     &st,
		SyncStatus: ptr(false),
	})
	if err != nil {
		return fmt.Errorf("persist status %s: %w", msgID, err)
	}
	if !updated {
		e.logger.Debug("status for unknown message", zap.String("msg_id", msgID), zap.String("status", string(st)))
		return nil
	}
	e.bus.Emit(bus.KindMessageStatus, bus.MessageRef{MsgID: msgID, Status: string(st)})

	if !e.notifier.NotifyStatusChange(ctx, msgID, st) {
		return nil
	}
	return settleStatus(e.db, e.bus, msgID, st)
}

// ProcessEdit rewrites the body and re-posts the message. An acknowledged
// re-post settles the row; a failed one marks it unsynced so the sweeper
// delivers the new body.
func (e *Engine) ProcessEdit(ctx context.Context, ed *wa.Edit) error {
	updated, err := e.db.EditMessage(ed.MsgID, ed.Body, ed.Timestamp)
	if err != nil {
		return fmt.Errorf("persist edit %s: %w", ed.MsgID, err)
	}
	if !updated {
		e.logger.Debug("edit for unknown message", zap.String("msg_id", ed.MsgID))
		return nil
	}

	m, err := e.db.GetMessage(ed.MsgID)
	if err != nil {
		return fmt.Errorf("reload edited message %s: %w", ed.MsgID, err)
	}
	if m == nil {
		return nil
	}
	e.bus.Emit(bus.KindMessageEdited, refOf(m))

	if e.notifier.NotifyNewMessage(ctx, m) {
		return settleMessage(e.db, e.bus, m.MsgID, m.Status)
	}
	if _, err := e.db.UpdateMessage(ed.MsgID, store.MessageUpdate{SyncMessage: ptr(false)}); err != nil {
		return fmt.Errorf("mark edit unsynced %s: %w", ed.MsgID, err)
	}
	return nil
}

// settleMessage marks a forwarded message as known to the backend. Both
// flags are set only while the row still holds the status that was sent;
// a newer status that raced in keeps sync_status cleared.
func settleMessage(db *store.DB, b *bus.Bus, msgID string, sent store.Status) error {
	ok, err := db.UpdateMessage(msgID, store.MessageUpdate{
		SyncMessage:  ptr(true),
		SyncStatus:   ptr(true),
		ExpectStatus: &sent,
	})
	if err != nil {
		return fmt.Errorf("settle message %s: %w", msgID, err)
	}
	if !ok {
		if _, err := db.UpdateMessage(msgID, store.MessageUpdate{SyncMessage: ptr(true)}); err != nil {
			return fmt.Errorf("settle message %s: %w", msgID, err)
		}
	}
	b.Emit(bus.KindMessageSynced, bus.MessageRef{MsgID: msgID, Status: string(sent)})
	return nil
}

// settleStatus marks the forwarded status as acknowledged unless it has
// already been superseded.
func settleStatus(db *store.DB, b *bus.Bus, msgID string, sent store.Status) error {
	ok, err := db.UpdateMessage(msgID, store.MessageUpdate{
		SyncStatus:   ptr(true),
		ExpectStatus: &sent,
	})
	if err != nil {
		return fmt.Errorf("settle status %s: %w", msgID, err)
	}
	if ok {
		b.Emit(bus.KindMessageSynced, bus.MessageRef{MsgID: msgID, Status: string(sent)})
	}
	return nil
}

func refOf(m *store.Message) bus.MessageRef {
	return bus.MessageRef{MsgID: m.MsgID, Counterparty: m.Counterparty, Status: string(m.Status)}
}

func ptr[T any](v T) *T {
	return &v
}

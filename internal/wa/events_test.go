package wa

import (
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/wppbridge/internal/bus"
	"github.com/matheus3301/wppbridge/internal/status"
	"github.com/matheus3301/wppbridge/internal/store"
	"go.mau.fi/whatsmeow/proto/waCommon"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
)

type statusCall struct {
	msgID  string
	status store.Status
}

// recordingSink captures what the handler enqueues.
type recordingSink struct {
	mu       sync.Mutex
	messages []*store.Message
	statuses []statusCall
	edits    []*Edit
}

func (s *recordingSink) EnqueueMessage(m *store.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
	return true
}

func (s *recordingSink) EnqueueStatusChange(msgID string, st store.Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, statusCall{msgID, st})
	return true
}

func (s *recordingSink) EnqueueEdit(e *Edit) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edits = append(s.edits, e)
	return true
}

func newHandler(t *testing.T, states ...status.State) (*EventHandler, *recordingSink, *status.Machine, *bus.Bus) {
	t.Helper()
	b := bus.New()
	m := status.NewMachine(b)
	if err := m.Walk(states...); err != nil {
		t.Fatalf("walk: %v", err)
	}
	sink := &recordingSink{}
	return NewEventHandler("main", sink, b, m, nil), sink, m, b
}

func textEvent(id, body string) *events.Message {
	return &events.Message{
		Info: types.MessageInfo{
			ID:        id,
			Timestamp: time.Now(),
			MessageSource: types.MessageSource{
				Chat:   types.JID{User: "c", Server: types.DefaultUserServer},
				Sender: types.JID{User: "c", Server: types.DefaultUserServer},
			},
		},
		Message: &waE2E.Message{Conversation: proto.String(body)},
	}
}

func TestHandleConnectedFromAuthRequired(t *testing.T) {
	h, _, m, _ := newHandler(t, status.AuthRequired)
	h.Handle(&events.Connected{})
	if m.Current() != status.Syncing {
		t.Errorf("state = %s, want SYNCING", m.Current())
	}
}

func TestHandleConnectedFromReconnecting(t *testing.T) {
	h, _, m, _ := newHandler(t, status.Connecting, status.Syncing, status.Reconnecting)
	h.Handle(&events.Connected{})
	if m.Current() != status.Syncing {
		t.Errorf("state = %s, want SYNCING (reconnect path)", m.Current())
	}
}

func TestHandleDisconnected(t *testing.T) {
	h, _, m, b := newHandler(t, status.Connecting, status.Syncing, status.Ready)

	ch, unsub := b.Subscribe(bus.KindStatusChanged, 10)
	defer unsub()

	h.Handle(&events.Disconnected{})

	if m.Current() != status.Reconnecting {
		t.Errorf("state = %s, want RECONNECTING", m.Current())
	}
	select {
	case evt := <-ch:
		change := evt.Payload.(status.StatusChange)
		if change.To != status.Reconnecting {
			t.Errorf("change = %+v", change)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for status change event")
	}
}

func TestHandleOfflineSyncCompletedMarksReady(t *testing.T) {
	h, _, m, _ := newHandler(t, status.Connecting, status.Syncing)
	h.Handle(&events.OfflineSyncCompleted{Count: 3})
	if m.Current() != status.Ready {
		t.Errorf("state = %s, want READY", m.Current())
	}
}

func TestHandleMessageEnqueues(t *testing.T) {
	h, sink, m, _ := newHandler(t, status.Connecting, status.Syncing)

	h.Handle(textEvent("test1", "hello"))

	if m.Current() != status.Ready {
		t.Errorf("state = %s, want READY (first message after sync)", m.Current())
	}
	if len(sink.messages) != 1 {
		t.Fatalf("enqueued %d messages, want 1", len(sink.messages))
	}
	got := sink.messages[0]
	if got.MsgID != "test1" || got.Body != "hello" || got.InstanceID != "main" {
		t.Errorf("enqueued = %+v", got)
	}
}

func TestHandleMessageWhileReady(t *testing.T) {
	h, sink, m, _ := newHandler(t, status.Connecting, status.Syncing, status.Ready)
	h.Handle(textEvent("test2", "hello again"))
	if m.Current() != status.Ready {
		t.Errorf("state = %s, want READY (should stay ready)", m.Current())
	}
	if len(sink.messages) != 1 {
		t.Errorf("enqueued %d messages, want 1", len(sink.messages))
	}
}

func TestHandleUnmappableMessageEnqueuesNothing(t *testing.T) {
	h, sink, _, _ := newHandler(t, status.Connecting, status.Syncing, status.Ready)
	h.Handle(textEvent("", "no id"))
	if len(sink.messages) != 0 || len(sink.edits) != 0 {
		t.Errorf("unmappable message enqueued: %+v %+v", sink.messages, sink.edits)
	}
}

func TestHandleEditEnqueuesEdit(t *testing.T) {
	h, sink, _, _ := newHandler(t, status.Connecting, status.Syncing, status.Ready)

	evt := textEvent("E1", "")
	evt.Message = &waE2E.Message{ProtocolMessage: &waE2E.ProtocolMessage{
		Type:          waE2E.ProtocolMessage_MESSAGE_EDIT.Enum(),
		Key:           &waCommon.MessageKey{ID: proto.String("ORIG")},
		EditedMessage: &waE2E.Message{Conversation: proto.String("new")},
	}}
	h.Handle(evt)

	if len(sink.messages) != 0 {
		t.Errorf("edit must not enqueue a new message")
	}
	if len(sink.edits) != 1 || sink.edits[0].MsgID != "ORIG" || sink.edits[0].Body != "new" {
		t.Errorf("edits = %+v", sink.edits)
	}
}

func TestHandleReceiptEnqueuesPerMessage(t *testing.T) {
	h, sink, _, _ := newHandler(t, status.Connecting, status.Syncing, status.Ready)

	h.Handle(&events.Receipt{
		MessageIDs: []types.MessageID{"A", "B"},
		Type:       types.ReceiptTypeRead,
	})

	want := []statusCall{{"A", store.StatusRead}, {"B", store.StatusRead}}
	if len(sink.statuses) != len(want) {
		t.Fatalf("statuses = %+v, want %+v", sink.statuses, want)
	}
	for i := range want {
		if sink.statuses[i] != want[i] {
			t.Errorf("status[%d] = %+v, want %+v", i, sink.statuses[i], want[i])
		}
	}
}

func TestHandleReceiptIgnoresNonStatusReceipts(t *testing.T) {
	h, sink, _, _ := newHandler(t, status.Connecting, status.Syncing, status.Ready)
	h.Handle(&events.Receipt{MessageIDs: []types.MessageID{"A"}, Type: types.ReceiptTypeRetry})
	if len(sink.statuses) != 0 {
		t.Errorf("retry receipt enqueued %+v", sink.statuses)
	}
}

func TestHandleLoggedOut(t *testing.T) {
	h, _, m, b := newHandler(t, status.Connecting, status.Syncing, status.Ready)

	ch, unsub := b.Subscribe(bus.KindLoggedOut, 10)
	defer unsub()

	h.Handle(&events.LoggedOut{})

	if m.Current() != status.AuthRequired {
		t.Errorf("state = %s, want AUTH_REQUIRED", m.Current())
	}
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Error("did not receive session.logged_out event")
	}
}

func TestHandleStreamReplacedDegrades(t *testing.T) {
	h, _, m, _ := newHandler(t, status.Connecting, status.Syncing, status.Ready)
	h.Handle(&events.StreamReplaced{})
	if m.Current() != status.Degraded {
		t.Errorf("state = %s, want DEGRADED", m.Current())
	}
	h.Handle(&events.Connected{})
	if m.Current() != status.Syncing {
		t.Errorf("state = %s, want SYNCING after reconnect from DEGRADED", m.Current())
	}
}

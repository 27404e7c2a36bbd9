package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds. Subscribers filter by prefix ("message.", "session.", "sweep.").
const (
	KindMessageUpserted = "message.upserted"
	KindMessageStatus   = "message.status"
	KindMessageEdited   = "message.edited"
	KindMessageSynced   = "message.synced"

	KindStatusChanged = "session.status_changed"
	KindQRGenerated   = "session.qr_generated"
	KindAuthenticated = "session.authenticated"
	KindAuthFailed    = "session.auth_failed"
	KindLoggedOut     = "session.logged_out"

	KindSweepDone = "sweep.done"
)

// MessageRef identifies the message an event is about.
type MessageRef struct {
	MsgID        string `json:"msg_id"`
	Counterparty string `json:"counterparty,omitempty"`
	Status       string `json:"status,omitempty"`
}

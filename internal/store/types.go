package store

// Status is the canonical delivery status of a message.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusSent     Status = "SENT"
	StatusReceived Status = "RECEIVED"
	StatusRead     Status = "READ"
	StatusPlayed   Status = "PLAYED"
	StatusError    Status = "ERROR"
)

// Message kinds.
const (
	KindText   = "text"
	KindMedia  = "media"
	KindSystem = "system"
)

// Attachment describes the media carried by a message. The zero value means
// no attachment.
type Attachment struct {
	Kind       string // image, video, audio, document, sticker
	Name       string // original filename
	StoredName string
	Backend    string // storage backend tag, e.g. "local"
}

// IsZero reports whether the message has no attachment.
func (a Attachment) IsZero() bool {
	return a == Attachment{}
}

// Message is the canonical persisted row for one WhatsApp message.
type Message struct {
	ID           int64
	MsgID        string
	InstanceID   string
	Counterparty string
	Body         string // empty for pure media
	QuotedID     string
	MessageType  string
	Timestamp    int64 // unix ms, source assigned
	FromMe       bool
	Status       Status
	Attachment   Attachment
	SyncMessage  bool
	SyncStatus   bool
}

// Settled reports whether the backend has acknowledged both the message and
// its current status.
func (m *Message) Settled() bool {
	return m.SyncMessage && m.SyncStatus
}

// MessageUpdate is a partial update. Nil fields keep their stored value.
type MessageUpdate struct {
	Status      *Status
	SyncStatus  *bool
	SyncMessage *bool

	// ExpectStatus makes the update apply only while the row still holds
	// this status.
	ExpectStatus *Status
}

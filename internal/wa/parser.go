package wa

import (
	"errors"

	"github.com/matheus3301/wppbridge/internal/store"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

// Ack codes as reported by the messaging client.
const (
	AckPending  = 0
	AckSent     = 1
	AckReceived = 2
	AckRead     = 3
	AckPlayed   = 4
)

var (
	errNoMessageID = errors.New("message has no id")
	errNoChat      = errors.New("message has no chat")
)

// StatusFromAck maps an ack code to the canonical status. Every integer maps
// to something; unknown codes (including negatives) are ERROR.
func StatusFromAck(code int) store.Status {
	switch code {
	case AckPending:
		return store.StatusPending
	case AckSent:
		return store.StatusSent
	case AckReceived:
		return store.StatusReceived
	case AckRead:
		return store.StatusRead
	case AckPlayed:
		return store.StatusPlayed
	default:
		return store.StatusError
	}
}

// AckFromReceipt returns the ack code carried by a receipt. Receipts that
// do not describe a recipient's progress (sender, retry, self) return false.
func AckFromReceipt(t types.ReceiptType) (int, bool) {
	switch t {
	case types.ReceiptTypeDelivered:
		return AckReceived, true
	case types.ReceiptTypeRead:
		return AckRead, true
	case types.ReceiptTypePlayed:
		return AckPlayed, true
	default:
		return 0, false
	}
}

// Edit is a body change to a message that already exists.
type Edit struct {
	MsgID     string
	Body      string
	Timestamp int64
}

// ParseLiveMessage normalizes a live whatsmeow message event into a row.
// Outbound messages start as SENT, inbound ones as RECEIVED.
func ParseLiveMessage(instanceID string, evt *events.Message) (*store.Message, error) {
	if evt.Info.ID == "" {
		return nil, errNoMessageID
	}
	if evt.Info.Chat.IsEmpty() {
		return nil, errNoChat
	}

	m := &store.Message{
		MsgID:        evt.Info.ID,
		InstanceID:   instanceID,
		Counterparty: evt.Info.Chat.ToNonAD().String(),
		Body:         extractTextBody(evt.Message),
		QuotedID:     extractQuotedID(evt.Message),
		MessageType:  detectMessageType(evt.Message),
		Timestamp:    evt.Info.Timestamp.UnixMilli(),
		FromMe:       evt.Info.IsFromMe,
		Status:       store.StatusReceived,
		Attachment:   extractAttachment(evt.Message),
	}
	if m.FromMe {
		m.Status = store.StatusSent
	}
	return m, nil
}

// ParseEdit reports whether evt edits an earlier message and, if so, returns
// the target id and the new body.
func ParseEdit(evt *events.Message) (*Edit, bool) {
	pm := evt.Message.GetProtocolMessage()
	if pm == nil || pm.GetType() != waE2E.ProtocolMessage_MESSAGE_EDIT {
		return nil, false
	}
	target := pm.GetKey().GetID()
	if target == "" {
		return nil, false
	}
	return &Edit{
		MsgID:     target,
		Body:      extractTextBody(pm.GetEditedMessage()),
		Timestamp: evt.Info.Timestamp.UnixMilli(),
	}, true
}

func extractTextBody(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if c := msg.GetConversation(); c != "" {
		return c
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	switch {
	case msg.GetImageMessage() != nil:
		return msg.GetImageMessage().GetCaption()
	case msg.GetVideoMessage() != nil:
		return msg.GetVideoMessage().GetCaption()
	case msg.GetDocumentMessage() != nil:
		return msg.GetDocumentMessage().GetCaption()
	}
	return ""
}

func extractQuotedID(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	var ci *waE2E.ContextInfo
	switch {
	case msg.GetExtendedTextMessage() != nil:
		ci = msg.GetExtendedTextMessage().GetContextInfo()
	case msg.GetImageMessage() != nil:
		ci = msg.GetImageMessage().GetContextInfo()
	case msg.GetVideoMessage() != nil:
		ci = msg.GetVideoMessage().GetContextInfo()
	case msg.GetAudioMessage() != nil:
		ci = msg.GetAudioMessage().GetContextInfo()
	case msg.GetDocumentMessage() != nil:
		ci = msg.GetDocumentMessage().GetContextInfo()
	case msg.GetStickerMessage() != nil:
		ci = msg.GetStickerMessage().GetContextInfo()
	}
	return ci.GetStanzaID()
}

func extractAttachment(msg *waE2E.Message) store.Attachment {
	kind := mediaKind(msg)
	if kind == "" {
		return store.Attachment{}
	}
	a := store.Attachment{Kind: kind}
	if doc := msg.GetDocumentMessage(); doc != nil {
		a.Name = doc.GetFileName()
	}
	return a
}

// mediaKind returns the attachment kind, or "" for non-media messages.
func mediaKind(msg *waE2E.Message) string {
	switch {
	case msg == nil:
		return ""
	case msg.GetImageMessage() != nil:
		return MediaImage
	case msg.GetVideoMessage() != nil:
		return MediaVideo
	case msg.GetAudioMessage() != nil:
		return MediaAudio
	case msg.GetDocumentMessage() != nil:
		return MediaDocument
	case msg.GetStickerMessage() != nil:
		return MediaSticker
	default:
		return ""
	}
}

func detectMessageType(msg *waE2E.Message) string {
	switch {
	case msg == nil:
		return store.KindSystem
	case msg.GetConversation() != "" || msg.GetExtendedTextMessage() != nil:
		return store.KindText
	case mediaKind(msg) != "":
		return store.KindMedia
	default:
		return store.KindSystem
	}
}

package wa

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/wppbridge/internal/bus"
	"github.com/matheus3301/wppbridge/internal/store"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	wastore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3"
)

// Attachment kinds.
const (
	MediaImage    = "image"
	MediaVideo    = "video"
	MediaAudio    = "audio"
	MediaDocument = "document"
	MediaSticker  = "sticker"
)

// ErrNotLoggedIn is returned by operations that need a paired device.
var ErrNotLoggedIn = errors.New("instance is not logged in")

// Adapter wraps the whatsmeow client for one instance.
type Adapter struct {
	client     *whatsmeow.Client
	container  *sqlstore.Container
	bus        *bus.Bus
	logger     *zap.Logger
	instanceID string
}

// NewAdapter opens the device store at sessionDBPath and builds a client.
func NewAdapter(ctx context.Context, sessionDBPath, instanceID string, b *bus.Bus, logger *zap.Logger) (*Adapter, error) {
	// Device name shown on the phone's linked devices list.
	wastore.SetOSInfo("wppbridge", [3]uint32{0, 1, 0})

	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=on", sessionDBPath),
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create session store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get device store: %w", err)
	}

	return &Adapter{
		client:     whatsmeow.NewClient(deviceStore, nil),
		container:  container,
		bus:        b,
		logger:     logger.With(zap.String("component", "wa")),
		instanceID: instanceID,
	}, nil
}

// IsLoggedIn returns whether the adapter has valid credentials.
func (a *Adapter) IsLoggedIn() bool {
	return a.client.Store.ID != nil
}

// PhoneNumber returns the paired phone number, or "" before pairing.
func (a *Adapter) PhoneNumber() string {
	if a.client.Store.ID == nil {
		return ""
	}
	return a.client.Store.ID.User
}

func (a *Adapter) Connect() error {
	a.logger.Info("connecting to WhatsApp")
	return a.client.Connect()
}

func (a *Adapter) Disconnect() {
	a.logger.Info("disconnecting from WhatsApp")
	a.client.Disconnect()
}

// RegisterEventHandler adds a handler for whatsmeow events.
func (a *Adapter) RegisterEventHandler(handler whatsmeow.EventHandler) {
	a.client.AddEventHandler(handler)
}

// SendText sends a text message, quoting quotedID when it is not empty, and
// returns the row describing what was sent.
func (a *Adapter) SendText(ctx context.Context, to, body, quotedID string) (*store.Message, error) {
	jid, err := parseRecipient(to)
	if err != nil {
		return nil, err
	}

	msg := &waE2E.Message{Conversation: proto.String(body)}
	if quotedID != "" {
		msg = &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text:        proto.String(body),
			ContextInfo: &waE2E.ContextInfo{StanzaID: proto.String(quotedID)},
		}}
	}

	resp, err := a.client.SendMessage(ctx, jid, msg)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return a.outbound(jid, resp, store.KindText, body, quotedID, store.Attachment{}), nil
}

// Media is an attachment to upload and send.
type Media struct {
	Kind       string // image, video, audio or document
	MimeType   string
	FileName   string
	StoredName string // name under the instance media directory
	Data       []byte
}

// SendMedia uploads the media and sends it with an optional caption.
func (a *Adapter) SendMedia(ctx context.Context, to string, media Media, caption, quotedID string) (*store.Message, error) {
	jid, err := parseRecipient(to)
	if err != nil {
		return nil, err
	}

	mediaType, err := uploadType(media.Kind)
	if err != nil {
		return nil, err
	}
	up, err := a.client.Upload(ctx, media.Data, mediaType)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", media.Kind, err)
	}

	var ci *waE2E.ContextInfo
	if quotedID != "" {
		ci = &waE2E.ContextInfo{StanzaID: proto.String(quotedID)}
	}
	msg := buildMediaMessage(media, up, caption, ci)

	resp, err := a.client.SendMessage(ctx, jid, msg)
	if err != nil {
		return nil, fmt.Errorf("send %s: %w", media.Kind, err)
	}
	att := store.Attachment{
		Kind:       media.Kind,
		Name:       media.FileName,
		StoredName: media.StoredName,
		Backend:    "local",
	}
	return a.outbound(jid, resp, store.KindMedia, caption, quotedID, att), nil
}

func (a *Adapter) outbound(jid types.JID, resp whatsmeow.SendResponse, kind, body, quotedID string, att store.Attachment) *store.Message {
	ts := resp.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return &store.Message{
		MsgID:        resp.ID,
		InstanceID:   a.instanceID,
		Counterparty: jid.String(),
		Body:         body,
		QuotedID:     quotedID,
		MessageType:  kind,
		Timestamp:    ts.UnixMilli(),
		FromMe:       true,
		Status:       store.StatusSent,
		Attachment:   att,
	}
}

func uploadType(kind string) (whatsmeow.MediaType, error) {
	switch kind {
	case MediaImage:
		return whatsmeow.MediaImage, nil
	case MediaVideo:
		return whatsmeow.MediaVideo, nil
	case MediaAudio:
		return whatsmeow.MediaAudio, nil
	case MediaDocument:
		return whatsmeow.MediaDocument, nil
	default:
		return "", fmt.Errorf("unsupported media kind %q", kind)
	}
}

func buildMediaMessage(m Media, up whatsmeow.UploadResponse, caption string, ci *waE2E.ContextInfo) *waE2E.Message {
	switch m.Kind {
	case MediaImage:
		return &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
			Caption:       optional(caption),
			Mimetype:      proto.String(m.MimeType),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
			ContextInfo:   ci,
		}}
	case MediaVideo:
		return &waE2E.Message{VideoMessage: &waE2E.VideoMessage{
			Caption:       optional(caption),
			Mimetype:      proto.String(m.MimeType),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
			ContextInfo:   ci,
		}}
	case MediaAudio:
		return &waE2E.Message{AudioMessage: &waE2E.AudioMessage{
			Mimetype:      proto.String(m.MimeType),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
			ContextInfo:   ci,
		}}
	default:
		return &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
			Caption:       optional(caption),
			FileName:      proto.String(m.FileName),
			Title:         proto.String(m.FileName),
			Mimetype:      proto.String(m.MimeType),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
			ContextInfo:   ci,
		}}
	}
}

// GetProfilePicture returns the avatar URL of jid, or "" when it has none
// or hides it from us.
func (a *Adapter) GetProfilePicture(ctx context.Context, jid string) (string, error) {
	target, err := parseRecipient(jid)
	if err != nil {
		return "", err
	}
	info, err := a.client.GetProfilePictureInfo(ctx, target, &whatsmeow.GetProfilePictureParams{})
	if errors.Is(err, whatsmeow.ErrProfilePictureNotSet) || errors.Is(err, whatsmeow.ErrProfilePictureUnauthorized) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("profile picture %s: %w", jid, err)
	}
	if info == nil {
		return "", nil
	}
	return info.URL, nil
}

// LoadAvatars resolves avatar URLs for many jids. Failures are logged and
// leave the jid out of the result.
func (a *Adapter) LoadAvatars(ctx context.Context, jids []string) map[string]string {
	out := make(map[string]string, len(jids))
	for _, jid := range jids {
		url, err := a.GetProfilePicture(ctx, jid)
		if err != nil {
			a.logger.Warn("avatar lookup failed", zap.String("jid", jid), zap.Error(err))
			continue
		}
		out[jid] = url
	}
	return out
}

// Group is a joined group chat.
type Group struct {
	JID          string `json:"jid"`
	Name         string `json:"name"`
	Participants int    `json:"participants"`
}

// LoadGroups lists the groups the account belongs to.
func (a *Adapter) LoadGroups(ctx context.Context) ([]Group, error) {
	if !a.IsLoggedIn() {
		return nil, ErrNotLoggedIn
	}
	infos, err := a.client.GetJoinedGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("get joined groups: %w", err)
	}
	groups := make([]Group, 0, len(infos))
	for _, g := range infos {
		groups = append(groups, Group{
			JID:          g.JID.String(),
			Name:         g.GroupName.Name,
			Participants: len(g.Participants),
		})
	}
	return groups, nil
}

// NumberInfo is the result of checking a phone number on WhatsApp.
type NumberInfo struct {
	Query  string `json:"query"`
	JID    string `json:"jid,omitempty"`
	Exists bool   `json:"exists"`
}

// ValidateNumber checks whether phone has a WhatsApp account.
func (a *Adapter) ValidateNumber(ctx context.Context, phone string) (NumberInfo, error) {
	phone = normalizePhone(phone)
	res, err := a.client.IsOnWhatsApp(ctx, []string{"+" + phone})
	if err != nil {
		return NumberInfo{}, fmt.Errorf("is on whatsapp: %w", err)
	}
	info := NumberInfo{Query: phone}
	if len(res) > 0 && res[0].IsIn {
		info.Exists = true
		info.JID = res[0].JID.String()
	}
	return info, nil
}

// ContactVars returns the names the device store knows for jid.
func (a *Adapter) ContactVars(ctx context.Context, jid string) (map[string]string, error) {
	target, err := parseRecipient(jid)
	if err != nil {
		return nil, err
	}
	c, err := a.client.Store.Contacts.GetContact(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("get contact: %w", err)
	}
	vars := map[string]string{
		"jid":   target.String(),
		"phone": target.User,
	}
	if !c.Found {
		return vars, nil
	}
	for k, v := range map[string]string{
		"first_name":    c.FirstName,
		"full_name":     c.FullName,
		"push_name":     c.PushName,
		"business_name": c.BusinessName,
	} {
		if v != "" {
			vars[k] = v
		}
	}
	return vars, nil
}

// parseRecipient accepts a full JID or a bare phone number.
func parseRecipient(s string) (types.JID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return types.JID{}, errors.New("empty recipient")
	}
	if !strings.Contains(s, "@") {
		return types.NewJID(normalizePhone(s), types.DefaultUserServer), nil
	}
	jid, err := types.ParseJID(s)
	if err != nil {
		return types.JID{}, fmt.Errorf("parse JID: %w", err)
	}
	return jid, nil
}

func normalizePhone(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return proto.String(s)
}

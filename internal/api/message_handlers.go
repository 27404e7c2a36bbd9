package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/matheus3301/wppbridge/internal/notify"
	"github.com/matheus3301/wppbridge/internal/store"
	"github.com/matheus3301/wppbridge/internal/wa"
	"go.uber.org/zap"
)

// MessageJSON is the canonical payload plus the local sync flags.
type MessageJSON struct {
	notify.MessagePayload
	SyncMessage bool `json:"sync_message"`
	SyncStatus  bool `json:"sync_status"`
}

// MessagesResponse is the body of GET /messages.
type MessagesResponse struct {
	Messages []MessageJSON `json:"messages"`
}

// UnsyncedResponse is the body of GET /messages/unsynced.
type UnsyncedResponse struct {
	Total    int64         `json:"total"`
	Messages []MessageJSON `json:"messages"`
}

func toJSON(msgs []store.Message) []MessageJSON {
	out := make([]MessageJSON, 0, len(msgs))
	for i := range msgs {
		m := &msgs[i]
		out = append(out, MessageJSON{
			MessagePayload: notify.PayloadOf(m),
			SyncMessage:    m.SyncMessage,
			SyncStatus:     m.SyncStatus,
		})
	}
	return out
}

func queryInt(r *http.Request, key string, def int64) (int64, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, true
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	before, ok1 := queryInt(r, "before", 0)
	limit, ok2 := queryInt(r, "limit", 50)
	if !ok1 || !ok2 {
		writeError(w, http.StatusBadRequest, "bad_request", "before and limit must be non-negative integers")
		return
	}
	msgs, err := s.DB.ListMessages(s.InstanceID, r.URL.Query().Get("counterparty"), before, int(min(limit, 500)))
	if err != nil {
		s.Logger.Error("list messages", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "list messages failed")
		return
	}
	writeJSON(w, http.StatusOK, MessagesResponse{Messages: toJSON(msgs)})
}

func (s *Server) handleUnsynced(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", 200)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", "limit must be a non-negative integer")
		return
	}
	msgs, err := s.DB.UnsyncedMessages(s.InstanceID, int(limit))
	if err != nil {
		s.Logger.Error("list unsynced", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "list unsynced failed")
		return
	}
	total, err := s.DB.CountUnsynced(s.InstanceID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "count unsynced failed")
		return
	}
	writeJSON(w, http.StatusOK, UnsyncedResponse{Total: total, Messages: toJSON(msgs)})
}

type sendTextRequest struct {
	To       string `json:"to"`
	Body     string `json:"body"`
	QuotedID string `json:"quoted_id"`
}

// handleSendText sends through the capability and hands the sent message to
// the queue like any other event, so it is persisted and forwarded in order.
func (s *Server) handleSendText(w http.ResponseWriter, r *http.Request) {
	var req sendTextRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.To) == "" || req.Body == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "to and body are required")
		return
	}
	m, err := s.Messenger.SendText(r.Context(), req.To, req.Body, req.QuotedID)
	if err != nil {
		s.writeCapabilityError(w, "send_text", err)
		return
	}
	s.accept(w, m)
}

func (s *Server) handleSendFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid multipart form")
		return
	}
	to := r.FormValue("to")
	if strings.TrimSpace(to) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "to is required")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "file is required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "read upload failed")
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	kind := r.FormValue("kind")
	if kind == "" {
		kind = kindFromMIME(mimeType)
	}

	stored, err := saveMedia(s.MediaDir, header.Filename, data)
	if err != nil {
		s.Logger.Error("store media", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "store media failed")
		return
	}

	m, err := s.Messenger.SendMedia(r.Context(), to, wa.Media{
		Kind:       kind,
		MimeType:   mimeType,
		FileName:   header.Filename,
		StoredName: stored,
		Data:       data,
	}, r.FormValue("caption"), r.FormValue("quoted_id"))
	if err != nil {
		s.writeCapabilityError(w, "send_file", err)
		return
	}
	s.accept(w, m)
}

func (s *Server) accept(w http.ResponseWriter, m *store.Message) {
	if !s.Sink.EnqueueMessage(m) {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "instance is shutting down")
		return
	}
	writeJSON(w, http.StatusAccepted, notify.PayloadOf(m))
}

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/matheus3301/wppbridge/internal/status"
	intsync "github.com/matheus3301/wppbridge/internal/sync"
	"github.com/matheus3301/wppbridge/internal/wa"
	"go.uber.org/zap"
)

// authWait bounds how long POST /auth waits for the first pairing step.
const authWait = 30 * time.Second

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Instance   string               `json:"instance"`
	State      status.State         `json:"state"`
	Since      time.Time            `json:"since"`
	QueueDepth int                  `json:"queue_depth"`
	Messages   int64                `json:"messages"`
	Unsynced   int64                `json:"unsynced"`
	LastSweep  *intsync.SweepResult `json:"last_sweep,omitempty"`
	BusDropped uint64               `json:"bus_dropped"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Instance:   s.InstanceID,
		State:      s.Machine.Current(),
		Since:      s.Machine.Since(),
		QueueDepth: s.Queue.Len(),
		BusDropped: s.Bus.Dropped(),
	}
	var err error
	if resp.Messages, err = s.DB.MessageCount(); err == nil {
		resp.Unsynced, err = s.DB.CountUnsynced(s.InstanceID)
	}
	if err == nil {
		resp.LastSweep, err = intsync.LastSweep(s.DB)
	}
	if err != nil {
		s.Logger.Error("read status", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "read status failed")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	res, err := s.Sweeper.Sweep(r.Context())
	if errors.Is(err, intsync.ErrSweepRunning) {
		writeError(w, http.StatusConflict, "conflict", err.Error())
		return
	}
	if err != nil {
		s.Logger.Error("manual sweep", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleAuth starts pairing and returns the first step, normally a QR code.
// Later codes arrive on GET /events as session.qr_generated.
func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	// The pairing flow outlives this request.
	events, err := s.Messenger.StartQRAuth(context.WithoutCancel(r.Context()))
	if err != nil {
		s.writeCapabilityError(w, "auth", err)
		return
	}

	timer := time.NewTimer(authWait)
	defer timer.Stop()
	select {
	case evt, ok := <-events:
		if !ok {
			writeError(w, http.StatusBadGateway, "upstream", "pairing ended without an event")
			return
		}
		code := http.StatusOK
		if evt.Type == wa.AuthEventAuthFailed || evt.Type == wa.AuthEventTimeout {
			code = http.StatusBadGateway
		}
		writeJSON(w, code, evt)
	case <-timer.C:
		writeError(w, http.StatusGatewayTimeout, "timeout", "no pairing code received")
	case <-r.Context().Done():
	}
}

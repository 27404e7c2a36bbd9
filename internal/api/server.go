// Package api is the local HTTP surface of a bridge instance.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/matheus3301/wppbridge/internal/bus"
	"github.com/matheus3301/wppbridge/internal/metrics"
	"github.com/matheus3301/wppbridge/internal/status"
	"github.com/matheus3301/wppbridge/internal/store"
	intsync "github.com/matheus3301/wppbridge/internal/sync"
	"github.com/matheus3301/wppbridge/internal/wa"
	"go.uber.org/zap"
)

// maxUploadBytes bounds multipart uploads to POST /messages/file.
const maxUploadBytes = 64 << 20

// Messenger is the messaging capability the router drives.
type Messenger interface {
	SendText(ctx context.Context, to, body, quotedID string) (*store.Message, error)
	SendMedia(ctx context.Context, to string, media wa.Media, caption, quotedID string) (*store.Message, error)
	GetProfilePicture(ctx context.Context, jid string) (string, error)
	LoadAvatars(ctx context.Context, jids []string) map[string]string
	LoadGroups(ctx context.Context) ([]wa.Group, error)
	ContactVars(ctx context.Context, jid string) (map[string]string, error)
	ValidateNumber(ctx context.Context, phone string) (wa.NumberInfo, error)
	StartQRAuth(ctx context.Context) (<-chan wa.AuthEvent, error)
}

// Sweeper runs one reconciliation pass on demand.
type Sweeper interface {
	Sweep(ctx context.Context) (intsync.SweepResult, error)
}

// Deps are the collaborators the handlers use.
type Deps struct {
	InstanceID string
	DB         *store.DB
	Messenger  Messenger
	Sink       wa.Sink
	Sweeper    Sweeper
	Machine    *status.Machine
	Queue      interface{ Len() int }
	Bus        *bus.Bus
	Metrics    *metrics.Metrics
	MediaDir   string
	Logger     *zap.Logger
}

// Server routes HTTP requests to the instance.
type Server struct {
	Deps
	mux     *http.ServeMux
	httpSrv *http.Server
}

func New(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	d.Logger = d.Logger.With(zap.String("component", "http"))

	s := &Server{Deps: d, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /messages", s.handleListMessages)
	s.mux.HandleFunc("GET /messages/unsynced", s.handleUnsynced)
	s.mux.HandleFunc("POST /messages/text", s.handleSendText)
	s.mux.HandleFunc("POST /messages/file", s.handleSendFile)

	s.mux.HandleFunc("POST /avatars", s.handleAvatars)
	s.mux.HandleFunc("GET /groups", s.handleGroups)
	s.mux.HandleFunc("GET /contacts/{jid}/picture", s.handlePicture)
	s.mux.HandleFunc("GET /contacts/{jid}/vars", s.handleContactVars)
	s.mux.HandleFunc("GET /contacts/{jid}/validate", s.handleValidate)

	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("POST /sweep", s.handleSweep)
	s.mux.HandleFunc("POST /auth", s.handleAuth)
	s.mux.HandleFunc("GET /events", s.handleEvents)
	s.mux.Handle("GET /metrics", s.Metrics.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.httpSrv = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.Logger.Info("http server listening", zap.String("addr", ln.Addr().String()))
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Logger.Error("http server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: message, Code: code})
}

// writeCapabilityError maps an error from the messaging capability.
func (s *Server) writeCapabilityError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, wa.ErrNotLoggedIn), errors.Is(err, wa.ErrAlreadyLoggedIn):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	default:
		s.Logger.Warn("capability call failed", zap.String("op", op), zap.Error(err))
		writeError(w, http.StatusBadGateway, "upstream", err.Error())
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json body")
		return false
	}
	return true
}

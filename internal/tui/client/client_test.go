package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matheus3301/wppbridge/internal/api"
	"github.com/matheus3301/wppbridge/internal/notify"
	"github.com/matheus3301/wppbridge/internal/status"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(strings.TrimPrefix(srv.URL, "http://"), filepath.Join(t.TempDir(), "none.sock"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestStatus(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/status" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(api.StatusResponse{Instance: "main", State: status.Ready, Unsynced: 4})
	}))

	st, err := c.Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Instance != "main" || st.State != status.Ready || st.Unsynced != 4 {
		t.Errorf("status = %+v", st)
	}
}

func TestAPIErrorIsDecoded(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"sweep already running","code":"conflict"}`))
	}))

	_, err := c.Sweep(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusConflict || apiErr.Code != "conflict" || apiErr.Message != "sweep already running" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestSendText(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["to"] != "5511" || req["body"] != "hi" {
			t.Errorf("request body = %v", req)
		}
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(notify.MessagePayload{MsgID: "OUT1"})
	}))

	m, err := c.SendText(context.Background(), "5511", "hi", "")
	if err != nil {
		t.Fatal(err)
	}
	if m.MsgID != "OUT1" {
		t.Errorf("MsgID = %q", m.MsgID)
	}
}

func TestSendFileIsMultipart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.jpg")
	if err := os.WriteFile(path, []byte("jpeg"), 0600); err != nil {
		t.Fatal(err)
	}

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Error(err)
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Error(err)
			return
		}
		data, _ := io.ReadAll(f)
		if hdr.Filename != "photo.jpg" || string(data) != "jpeg" || r.FormValue("caption") != "look" {
			t.Errorf("upload = %s %q caption %q", hdr.Filename, data, r.FormValue("caption"))
		}
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(notify.MessagePayload{MsgID: "OUT2"})
	}))

	if _, err := c.SendFile(context.Background(), "5511", path, "look"); err != nil {
		t.Fatal(err)
	}
}

func TestUnsyncedPassesLimit(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "25" {
			t.Errorf("limit = %q", r.URL.Query().Get("limit"))
		}
		_ = json.NewEncoder(w).Encode(api.UnsyncedResponse{Total: 1, Messages: []api.MessageJSON{{}}})
	}))

	resp, err := c.Unsynced(context.Background(), 25)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 || len(resp.Messages) != 1 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestWatchDeliversFrames(t *testing.T) {
	upgrader := websocket.Upgrader{}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("prefix") != "message." {
			t.Errorf("prefix = %q", r.URL.Query().Get("prefix"))
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(api.EventFrame{Kind: "message.synced", Timestamp: time.Now()})
		// Hold the connection until the client goes away.
		_, _, _ = conn.ReadMessage()
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	got := make(chan string, 1)
	go func() {
		_ = c.Watch(ctx, "message.", func(f api.EventFrame) {
			select {
			case got <- f.Kind:
			default:
			}
		})
	}()

	select {
	case kind := <-got:
		if kind != "message.synced" {
			t.Errorf("kind = %q", kind)
		}
	case <-ctx.Done():
		t.Fatal("no frame received")
	}
}

func TestNewAddsScheme(t *testing.T) {
	c, err := New("127.0.0.1:7070", "/tmp/none.sock")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Close() }()
	if c.baseURL != "http://127.0.0.1:7070" {
		t.Errorf("baseURL = %q", c.baseURL)
	}
}

package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/wppbridge/internal/store"
)

type recorded struct {
	method  string
	path    string
	headers http.Header
	body    []byte
}

// backend is a fake remote that records requests and answers with code.
type backend struct {
	mu       sync.Mutex
	code     int
	requests []recorded
}

func newBackend(t *testing.T, code int) (*backend, *httptest.Server) {
	t.Helper()
	b := &backend{code: code}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		b.mu.Lock()
		b.requests = append(b.requests, recorded{r.Method, r.URL.EscapedPath(), r.Header.Clone(), body})
		code := b.code
		b.mu.Unlock()
		w.WriteHeader(code)
		_, _ = w.Write([]byte(`{"error":"nope"}`))
	}))
	t.Cleanup(srv.Close)
	return b, srv
}

func (b *backend) calls() []recorded {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]recorded(nil), b.requests...)
}

func sample() *store.Message {
	return &store.Message{
		MsgID:        "M1",
		InstanceID:   "main",
		Counterparty: "5511@s.whatsapp.net",
		Body:         "hi",
		MessageType:  store.KindText,
		Timestamp:    1700000000000,
		Status:       store.StatusReceived,
	}
}

func TestNotifyNewMessage(t *testing.T) {
	b, srv := newBackend(t, http.StatusCreated)
	c := New(Options{BaseURL: srv.URL + "/", InstanceID: "main", Token: "tok", UserAgent: "ua/1"})

	if !c.NotifyNewMessage(context.Background(), sample()) {
		t.Fatal("NotifyNewMessage() = false, want true on 201")
	}

	calls := b.calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	got := calls[0]
	if got.method != http.MethodPost || got.path != "/receive_message/main/5511@s.whatsapp.net" {
		t.Errorf("request = %s %s", got.method, got.path)
	}
	if got.headers.Get("Authorization") != "Bearer tok" {
		t.Errorf("Authorization = %q", got.headers.Get("Authorization"))
	}
	if got.headers.Get("X-Correlation-Id") != "M1" {
		t.Errorf("X-Correlation-Id = %q, want message id", got.headers.Get("X-Correlation-Id"))
	}
	if got.headers.Get("User-Agent") != "ua/1" {
		t.Errorf("User-Agent = %q", got.headers.Get("User-Agent"))
	}

	var p MessagePayload
	if err := json.Unmarshal(got.body, &p); err != nil {
		t.Fatal(err)
	}
	if p.MsgID != "M1" || p.Body == nil || *p.Body != "hi" || p.QuotedID != nil || p.Media != nil {
		t.Errorf("payload = %+v", p)
	}
}

func TestNotifyStatusChange(t *testing.T) {
	b, srv := newBackend(t, http.StatusOK)
	c := New(Options{BaseURL: srv.URL})

	if !c.NotifyStatusChange(context.Background(), "M1", store.StatusRead) {
		t.Fatal("NotifyStatusChange() = false")
	}
	got := b.calls()[0]
	if got.method != http.MethodPut || got.path != "/update_message/M1" {
		t.Errorf("request = %s %s", got.method, got.path)
	}
	if strings.TrimSpace(string(got.body)) != `{"status":"READ"}` {
		t.Errorf("body = %s", got.body)
	}
}

func TestNonSuccessIsSingleAttempt(t *testing.T) {
	for _, code := range []int{http.StatusBadRequest, http.StatusInternalServerError, http.StatusServiceUnavailable} {
		b, srv := newBackend(t, code)
		c := New(Options{BaseURL: srv.URL})
		if c.NotifyStatusChange(context.Background(), "M1", store.StatusSent) {
			t.Errorf("code %d: got true, want false", code)
		}
		if n := len(b.calls()); n != 1 {
			t.Errorf("code %d: %d attempts, want exactly 1", code, n)
		}
	}
}

func TestUnreachableBackend(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(Options{BaseURL: url, Timeout: time.Second})
	if c.NotifyNewMessage(context.Background(), sample()) {
		t.Error("NotifyNewMessage() = true against a closed server")
	}
}

func TestLifecycleCalls(t *testing.T) {
	b, srv := newBackend(t, http.StatusNoContent)
	c := New(Options{BaseURL: srv.URL, InstanceID: "work"})
	ctx := context.Background()

	if !c.Init(ctx) || !c.Ready(ctx) || !c.Auth(ctx, false, "timeout") || !c.QR(ctx, "2@abc") {
		t.Fatal("lifecycle call returned false on 204")
	}

	calls := b.calls()
	want := []struct{ method, path string }{
		{http.MethodPut, "/init/work"},
		{http.MethodPut, "/ready/work"},
		{http.MethodPost, "/auth/work"},
		{http.MethodPost, "/qr/work"},
	}
	if len(calls) != len(want) {
		t.Fatalf("calls = %d, want %d", len(calls), len(want))
	}
	for i, w := range want {
		if calls[i].method != w.method || calls[i].path != w.path {
			t.Errorf("call %d = %s %s, want %s %s", i, calls[i].method, calls[i].path, w.method, w.path)
		}
	}

	var qr map[string]string
	if err := json.Unmarshal(calls[3].body, &qr); err != nil {
		t.Fatal(err)
	}
	if qr["code"] != "2@abc" || !strings.HasPrefix(qr["image"], "data:image/png;base64,") {
		t.Errorf("qr body = %v", qr)
	}
}

func TestPayloadOfMedia(t *testing.T) {
	m := sample()
	m.Body = ""
	m.Attachment = store.Attachment{Kind: "document", Name: "a.pdf", StoredName: "x.pdf", Backend: "local"}
	p := PayloadOf(m)
	if p.Body != nil {
		t.Error("empty body should encode as null")
	}
	if p.Media == nil || p.Media.Name != "a.pdf" {
		t.Errorf("media = %+v", p.Media)
	}
}

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matheus3301/wppbridge/internal/api"
	"github.com/matheus3301/wppbridge/internal/daemon"
	"github.com/matheus3301/wppbridge/internal/notify"
	intsync "github.com/matheus3301/wppbridge/internal/sync"
	"github.com/matheus3301/wppbridge/internal/wa"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// APIError is a non-2xx answer from the daemon's HTTP API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon returned %d", e.Status)
	}
	return fmt.Sprintf("daemon returned %d: %s", e.Status, e.Message)
}

// Client talks to a running daemon: HTTP for data, gRPC on the Unix socket
// for health.
type Client struct {
	baseURL string
	http    *http.Client
	conn    *grpc.ClientConn
	health  healthpb.HealthClient
}

// New prepares a client for the daemon listening on httpAddr (host:port or
// a full URL) with its control socket at socketPath. No connection is made
// until the first call.
func New(httpAddr, socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}

	base := strings.TrimRight(httpAddr, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	return &Client{
		baseURL: base,
		http:    &http.Client{Timeout: 60 * time.Second},
		conn:    conn,
		health:  healthpb.NewHealthClient(conn),
	}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Health reports the daemon's serving status.
func (c *Client) Health(ctx context.Context) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: daemon.HealthService})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.Status, nil
}

func (c *Client) Status(ctx context.Context) (*api.StatusResponse, error) {
	var out api.StatusResponse
	if err := c.do(ctx, http.MethodGet, "/status", nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Unsynced lists up to limit rows still waiting for the backend.
func (c *Client) Unsynced(ctx context.Context, limit int) (*api.UnsyncedResponse, error) {
	var out api.UnsyncedResponse
	path := "/messages/unsynced?limit=" + strconv.Itoa(limit)
	if err := c.do(ctx, http.MethodGet, path, nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Messages lists the newest messages, optionally for one counterparty.
func (c *Client) Messages(ctx context.Context, counterparty string, limit int) (*api.MessagesResponse, error) {
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	if counterparty != "" {
		q.Set("counterparty", counterparty)
	}
	var out api.MessagesResponse
	if err := c.do(ctx, http.MethodGet, "/messages?"+q.Encode(), nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Sweep runs a reconciliation pass now.
func (c *Client) Sweep(ctx context.Context) (*intsync.SweepResult, error) {
	var out intsync.SweepResult
	if err := c.do(ctx, http.MethodPost, "/sweep", nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SendText(ctx context.Context, to, body, quotedID string) (*notify.MessagePayload, error) {
	data, err := json.Marshal(map[string]string{"to": to, "body": body, "quoted_id": quotedID})
	if err != nil {
		return nil, err
	}
	var out notify.MessagePayload
	if err := c.do(ctx, http.MethodPost, "/messages/text", bytes.NewReader(data), "application/json", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendFile uploads the file at path as a media message.
func (c *Client) SendFile(ctx context.Context, to, path, caption string) (*notify.MessagePayload, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("to", to)
	if caption != "" {
		_ = mw.WriteField("caption", caption)
	}
	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var out notify.MessagePayload
	if err := c.do(ctx, http.MethodPost, "/messages/file", &buf, mw.FormDataContentType(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Auth starts pairing and returns the first step.
func (c *Client) Auth(ctx context.Context) (*wa.AuthEvent, error) {
	var out wa.AuthEvent
	if err := c.do(ctx, http.MethodPost, "/auth", nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Watch streams events whose kind starts with prefix until ctx is done or
// the connection drops.
func (c *Client) Watch(ctx context.Context, prefix string, fn func(api.EventFrame)) error {
	u := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/events"
	if prefix != "" {
		u += "?prefix=" + url.QueryEscape(prefix)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("dial events: %w", err)
	}
	defer func() { _ = conn.Close() }()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		var frame api.EventFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		fn(frame)
	}
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &APIError{Status: resp.StatusCode, Code: e.Code, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

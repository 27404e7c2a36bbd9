// Package notify forwards local state to the remote backend.
//
// Every call makes exactly one HTTP attempt and reports success as a bool.
// Failures are logged and left for the reconciliation sweep; nothing here
// retries.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/wppbridge/internal/metrics"
	"github.com/matheus3301/wppbridge/internal/store"
	"go.uber.org/zap"
)

// Operation names, used as log fields and metric labels.
const (
	OpReceiveMessage = "receive_message"
	OpUpdateMessage  = "update_message"
	OpInit           = "init"
	OpReady          = "ready"
	OpAuth           = "auth"
	OpQR             = "qr"
)

// maxErrorBody bounds how much of a failed response is logged.
const maxErrorBody = 512

// Options configures a Client.
type Options struct {
	BaseURL    string
	InstanceID string
	Token      string
	UserAgent  string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

// Client talks to the backend that is the system of record.
type Client struct {
	baseURL    string
	instanceID string
	token      string
	userAgent  string
	httpClient *http.Client
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// New creates a Client. Without an HTTPClient one is built with
// opts.Timeout, or 10s when that is unset.
func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		instanceID: opts.InstanceID,
		token:      strings.TrimSpace(opts.Token),
		userAgent:  strings.TrimSpace(opts.UserAgent),
		httpClient: httpClient,
		logger:     logger.With(zap.String("component", "notify")),
		metrics:    opts.Metrics,
	}
}

// MessagePayload is the canonical message as the backend receives it.
type MessagePayload struct {
	MsgID        string        `json:"msg_id"`
	InstanceID   string        `json:"instance_id"`
	Counterparty string        `json:"counterparty"`
	Body         *string       `json:"body"`
	QuotedID     *string       `json:"quoted_id"`
	Type         string        `json:"type"`
	Timestamp    int64         `json:"timestamp"`
	FromMe       bool          `json:"from_me"`
	Status       store.Status  `json:"status"`
	Media        *MediaPayload `json:"media,omitempty"`
}

// MediaPayload describes the attachment of a media message.
type MediaPayload struct {
	Kind       string `json:"kind"`
	Name       string `json:"name,omitempty"`
	StoredName string `json:"stored_name,omitempty"`
	Backend    string `json:"backend,omitempty"`
}

// PayloadOf converts a row to its wire form.
func PayloadOf(m *store.Message) MessagePayload {
	p := MessagePayload{
		MsgID:        m.MsgID,
		InstanceID:   m.InstanceID,
		Counterparty: m.Counterparty,
		Body:         nonEmpty(m.Body),
		QuotedID:     nonEmpty(m.QuotedID),
		Type:         m.MessageType,
		Timestamp:    m.Timestamp,
		FromMe:       m.FromMe,
		Status:       m.Status,
	}
	if !m.Attachment.IsZero() {
		p.Media = &MediaPayload{
			Kind:       m.Attachment.Kind,
			Name:       m.Attachment.Name,
			StoredName: m.Attachment.StoredName,
			Backend:    m.Attachment.Backend,
		}
	}
	return p
}

// NotifyNewMessage posts the full message. It returns true only when the
// backend answered 2xx.
func (c *Client) NotifyNewMessage(ctx context.Context, m *store.Message) bool {
	path := fmt.Sprintf("/receive_message/%s/%s", url.PathEscape(m.InstanceID), url.PathEscape(m.Counterparty))
	return c.send(ctx, OpReceiveMessage, http.MethodPost, path, m.MsgID, PayloadOf(m))
}

// NotifyStatusChange reports a new status for msgID.
func (c *Client) NotifyStatusChange(ctx context.Context, msgID string, st store.Status) bool {
	path := "/update_message/" + url.PathEscape(msgID)
	return c.send(ctx, OpUpdateMessage, http.MethodPut, path, msgID, map[string]store.Status{"status": st})
}

// Init tells the backend the daemon for this instance is starting.
func (c *Client) Init(ctx context.Context) bool {
	return c.send(ctx, OpInit, http.MethodPut, "/init/"+url.PathEscape(c.instanceID), "", nil)
}

// Ready tells the backend the instance can send and receive.
func (c *Client) Ready(ctx context.Context) bool {
	return c.send(ctx, OpReady, http.MethodPut, "/ready/"+url.PathEscape(c.instanceID), "", nil)
}

// Auth reports the outcome of pairing or a logout.
func (c *Client) Auth(ctx context.Context, authenticated bool, reason string) bool {
	body := map[string]any{"authenticated": authenticated}
	if reason != "" {
		body["reason"] = reason
	}
	return c.send(ctx, OpAuth, http.MethodPost, "/auth/"+url.PathEscape(c.instanceID), "", body)
}

// QR forwards a pairing code, with a PNG rendering for display.
func (c *Client) QR(ctx context.Context, code string) bool {
	body := map[string]string{"code": code}
	if img, err := QRDataURI(code); err == nil {
		body["image"] = img
	} else {
		c.logger.Warn("render qr code", zap.Error(err))
	}
	return c.send(ctx, OpQR, http.MethodPost, "/qr/"+url.PathEscape(c.instanceID), "", body)
}

func (c *Client) send(ctx context.Context, op, method, path, correlationID string, payload any) bool {
	ok := c.do(ctx, op, method, path, correlationID, payload)
	c.metrics.NotifyDone(op, ok)
	return ok
}

func (c *Client) do(ctx context.Context, op, method, path, correlationID string, payload any) bool {
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	logger := c.logger.With(
		zap.String("op", op),
		zap.String("correlation_id", correlationID),
	)

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			logger.Error("encode payload", zap.Error(err))
			return false
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		logger.Error("build request", zap.Error(err))
		return false
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("X-Correlation-Id", correlationID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Warn("backend unreachable", zap.Error(err))
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		logger.Debug("backend acknowledged", zap.Int("status", resp.StatusCode))
		return true
	}
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	logger.Warn("backend rejected call",
		zap.Int("status", resp.StatusCode),
		zap.String("body", strings.TrimSpace(string(respBody))),
	)
	return false
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

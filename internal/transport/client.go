// Package transport is the REST client for the CRM messaging backend.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/matheus3301/crmchat/internal/message"
	"go.uber.org/zap"
)

// ErrNotConfigured is returned by every call when no base URL is set.
var ErrNotConfigured = errors.New("transport: base url not configured")

// StatusError is returned when the backend answers with status >= 400.
type StatusError struct {
	Op     string
	Code   int
	Reason string
}

func (e *StatusError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: http %d", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: http %d: %s", e.Op, e.Code, e.Reason)
}

// Temporary reports whether retrying the request may succeed.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// Options configures a Client.
type Options struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// SendRequest is an outgoing message as handed to the backend. ClientID is the
// temporary id; the backend echoes it for idempotency.
type SendRequest struct {
	ConversationID string               `json:"conversation_id"`
	ClientID       string               `json:"client_id"`
	Kind           message.Kind         `json:"kind"`
	Content        string               `json:"content"`
	ReplyTo        string               `json:"reply_to,omitempty"`
	Attachments    []message.Attachment `json:"attachments,omitempty"`
}

// Page is one batch of conversation history.
type Page struct {
	Messages []message.Message `json:"messages"`
	// Cursor is passed back as "after" to fetch the next page. Empty means
	// the caller is caught up.
	Cursor string `json:"cursor"`
}

// Client talks JSON over HTTP to the backend. Safe for concurrent use.
type Client struct {
	base   *url.URL
	token  string
	http   *http.Client
	logger *zap.Logger
}

// New creates a client. An empty BaseURL yields a client whose calls fail
// with ErrNotConfigured.
func New(opts Options, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	c := &Client{
		token:  opts.Token,
		http:   &http.Client{Timeout: opts.Timeout},
		logger: logger,
	}
	if opts.BaseURL != "" {
		u, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
		if err != nil {
			return nil, fmt.Errorf("parse base url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("base url %q: unsupported scheme", opts.BaseURL)
		}
		c.base = u
	}
	return c, nil
}

// Send delivers a new message and returns the server's copy of it.
func (c *Client) Send(ctx context.Context, req SendRequest) (message.Message, error) {
	var out message.Message
	if err := c.do(ctx, "send", http.MethodPost, messagesPath(req.ConversationID), nil, req, &out); err != nil {
		return message.Message{}, err
	}
	if out.ConversationID == "" {
		out.ConversationID = req.ConversationID
	}
	out.Normalize()
	return out, nil
}

// Edit replaces the content of a server message.
func (c *Client) Edit(ctx context.Context, conversationID, id, content string) (message.Message, error) {
	var out message.Message
	body := map[string]string{"content": content}
	if err := c.do(ctx, "edit", http.MethodPatch, messagePath(conversationID, id), nil, body, &out); err != nil {
		return message.Message{}, err
	}
	if out.ConversationID == "" {
		out.ConversationID = conversationID
	}
	out.Normalize()
	return out, nil
}

// Delete removes a server message.
func (c *Client) Delete(ctx context.Context, conversationID, id string) error {
	return c.do(ctx, "delete", http.MethodDelete, messagePath(conversationID, id), nil, nil, nil)
}

// Fetch returns messages newer than after, oldest first.
func (c *Client) Fetch(ctx context.Context, conversationID, after string, limit int) (Page, error) {
	q := url.Values{}
	if after != "" {
		q.Set("after", after)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var page Page
	if err := c.do(ctx, "fetch", http.MethodGet, messagesPath(conversationID), q, nil, &page); err != nil {
		return Page{}, err
	}
	for i := range page.Messages {
		if page.Messages[i].ConversationID == "" {
			page.Messages[i].ConversationID = conversationID
		}
		page.Messages[i].Normalize()
	}
	return page, nil
}

func messagesPath(conversationID string) []string {
	return []string{"conversations", conversationID, "messages"}
}

func messagePath(conversationID, id string) []string {
	return append(messagesPath(conversationID), id)
}

func (c *Client) do(ctx context.Context, op, method string, segments []string, query url.Values, in, out any) error {
	if c.base == nil {
		return ErrNotConfigured
	}
	u := *c.base
	escaped := make([]string, len(segments))
	for i, seg := range segments {
		escaped[i] = url.PathEscape(seg)
	}
	u.RawPath = c.base.EscapedPath() + "/" + strings.Join(escaped, "/")
	u.Path = c.base.Path + "/" + strings.Join(segments, "/")
	u.RawQuery = query.Encode()

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()
	c.logger.Debug("transport request",
		zap.String("op", op),
		zap.String("method", method),
		zap.String("path", u.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode >= 400 {
		return &StatusError{Op: op, Code: resp.StatusCode, Reason: readReason(resp.Body)}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// readReason pulls an error message out of a failure body, accepting either
// {"error": "..."} or plain text.
func readReason(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(b) == 0 {
		return ""
	}
	var v struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(b, &v) == nil && v.Error != "" {
		return v.Error
	}
	return strings.TrimSpace(string(b))
}

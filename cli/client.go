package main

import (
	"bufio"
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
	"strings"

	"github.com/gorilla/websocket"

	"github.com/xiaot623/gogo/ragrouter/internal/domain"
)

const headerSessionID = "X-Session-ID"

// EventHandler receives each stream event in order.
type EventHandler func(domain.StreamEvent) error

// Client talks to a ragrouter server.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{},
	}
}

type apiError struct {
	Status  int
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	return req, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		apiErr := &apiError{Status: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return nil, apiErr
	}
	return resp, nil
}

// Chat posts a streaming chat request and hands every NDJSON event to fn.
// It returns the session id the server answered on.
func (c *Client) Chat(ctx context.Context, chatReq domain.ChatRequest, fn EventHandler) (string, error) {
	stream := true
	chatReq.Stream = &stream
	body, err := json.Marshal(chatReq)
	if err != nil {
		return "", err
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/v1/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	sessionID := resp.Header.Get(headerSessionID)

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev domain.StreamEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			return sessionID, fmt.Errorf("decode event: %w", err)
		}
		if err := fn(ev); err != nil {
			return sessionID, err
		}
		if ev.IsTerminal() {
			return sessionID, nil
		}
	}
	if err := sc.Err(); err != nil {
		return sessionID, err
	}
	return sessionID, fmt.Errorf("stream ended without a terminal event")
}

// ChatConn is an open chat WebSocket. Requests on one connection are answered
// in order.
type ChatConn struct {
	conn *websocket.Conn
}

// DialChat opens the chat WebSocket.
func (c *Client) DialChat(ctx context.Context) (*ChatConn, error) {
	u, err := url.Parse(c.baseURL + "/v1/chat/ws")
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	if c.apiKey != "" {
		q := u.Query()
		q.Set("api_key", c.apiKey)
		u.RawQuery = q.Encode()
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return &ChatConn{conn: conn}, nil
}

// Send writes one request and reads events until the terminal one.
func (cc *ChatConn) Send(req domain.ChatRequest, fn EventHandler) error {
	if err := cc.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	for {
		var ev domain.StreamEvent
		if err := cc.conn.ReadJSON(&ev); err != nil {
			return fmt.Errorf("read event: %w", err)
		}
		if err := fn(ev); err != nil {
			return err
		}
		if ev.IsTerminal() {
			return nil
		}
	}
}

// Close sends a close frame and closes the socket.
func (cc *ChatConn) Close() error {
	_ = cc.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return cc.conn.Close()
}

// Upload sends a local file to the document endpoint.
func (c *Client) Upload(ctx context.Context, path string) (*domain.UploadResponse, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/v1/documents/upload", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out domain.UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	return &out, nil
}

// History fetches the newest messages of a session.
func (c *Client) History(ctx context.Context, sessionID string, limit int) (*domain.MessageListResponse, error) {
	path := "/v1/sessions/" + url.PathEscape(sessionID) + "/messages"
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out domain.MessageListResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return &out, nil
}

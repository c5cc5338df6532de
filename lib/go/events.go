package uiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Frame is one store event: register, unregister, read, write, error or select.
type Frame struct {
	Event string            `json:"event"`
	Store string            `json:"store"`
	Type  string            `json:"type,omitempty"`
	Owner string            `json:"owner,omitempty"`
	Data  []json.RawMessage `json:"data,omitempty"`
	Error string            `json:"error,omitempty"`
	Time  time.Time         `json:"time"`
}

// PollFeed is a long-poll subscription to one store's events.
type PollFeed struct {
	client *Client
	id     string
	store  string
}

// OpenPoll subscribes to storeID's events. The server waits for the store to
// register before answering.
func (c *Client) OpenPoll(ctx context.Context, storeID string) (*PollFeed, error) {
	var opened struct {
		Client string `json:"client"`
		Store  string `json:"store"`
	}
	if err := c.do(ctx, http.MethodPost, "/events/poll", url.Values{"store": {storeID}}, nil, &opened); err != nil {
		return nil, err
	}
	return &PollFeed{client: c, id: opened.Client, store: opened.Store}, nil
}

// ID returns the server's id for the feed.
func (p *PollFeed) ID() string {
	return p.id
}

// Next returns the frames queued since the last call, waiting up to wait
// for the first one. It may return no frames.
func (p *PollFeed) Next(ctx context.Context, wait time.Duration) ([]Frame, error) {
	var params url.Values
	if wait > 0 {
		params = url.Values{"wait": {wait.String()}}
	}
	var frames []Frame
	err := p.client.do(ctx, http.MethodGet, "/events/poll/"+url.PathEscape(p.id), params, nil, &frames)
	return frames, err
}

// Close ends the subscription.
func (p *PollFeed) Close(ctx context.Context) error {
	return p.client.do(ctx, http.MethodDelete, "/events/poll/"+url.PathEscape(p.id), nil, nil, nil)
}

// Watcher is a websocket subscription to one store's events. The first frame
// reports whether the store is registered.
type Watcher struct {
	conn    *websocket.Conn
	pending []Frame
	mu      sync.Mutex
}

// Watch opens a websocket subscription to storeID's events.
func (c *Client) Watch(ctx context.Context, storeID string) (*Watcher, error) {
	u := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/events?store=" + url.QueryEscape(storeID)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			e := &Error{Status: resp.StatusCode, Message: resp.Status}
			var msg struct {
				Error string `json:"error"`
			}
			if json.NewDecoder(resp.Body).Decode(&msg) == nil && msg.Error != "" {
				e.Message = msg.Error
			}
			return nil, e
		}
		return nil, err
	}
	return &Watcher{conn: conn}, nil
}

// Next returns the next frame, unpacking batches. The context's deadline
// bounds the wait.
func (w *Watcher) Next(ctx context.Context) (Frame, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for len(w.pending) == 0 {
		deadline, _ := ctx.Deadline()
		w.conn.SetReadDeadline(deadline)
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			return Frame{}, err
		}
		data = bytes.TrimSpace(data)
		if len(data) > 0 && data[0] == '[' {
			if err := json.Unmarshal(data, &w.pending); err != nil {
				return Frame{}, err
			}
			continue
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			return Frame{}, err
		}
		return f, nil
	}
	f := w.pending[0]
	w.pending = w.pending[1:]
	return f, nil
}

// Close closes the websocket.
func (w *Watcher) Close() error {
	return w.conn.Close()
}

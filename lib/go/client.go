// Package uiclient provides a client library for a ui-data server: the
// store API, the bundled data source, and store event feeds.
package uiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Page is the result of a read, a query or a write.
type Page struct {
	Data  []any `json:"data"`
	Total *int  `json:"total,omitempty"`
}

// Window selects part of a store or collection. Nil fields leave the
// server's setting alone; Sort and Filter are JSON as the server accepts them.
type Window struct {
	Skip   *int
	Limit  *int
	Sort   string
	Filter string
}

// Values encodes the window as request parameters.
func (w Window) Values() url.Values {
	v := url.Values{}
	if w.Skip != nil {
		v.Set("skip", strconv.Itoa(*w.Skip))
	}
	if w.Limit != nil {
		v.Set("limit", strconv.Itoa(*w.Limit))
	}
	if w.Sort != "" {
		v.Set("sort", w.Sort)
	}
	if w.Filter != "" {
		v.Set("filter", w.Filter)
	}
	return v
}

// Error is a failed request.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d)", e.Message, e.Status)
}

// Client talks to one ui-data server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the server at baseURL (http://host:port).
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
	}
}

// SetHTTPClient replaces the HTTP client used for requests.
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.http = hc
}

// BaseURL returns the server address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Stores lists the registered store ids.
func (c *Client) Stores(ctx context.Context) ([]string, error) {
	var ids []string
	err := c.do(ctx, http.MethodGet, "/stores", nil, nil, &ids)
	return ids, err
}

// Read reads a store, first applying the given window to it.
func (c *Client) Read(ctx context.Context, id string, w Window) (*Page, error) {
	var page Page
	err := c.do(ctx, http.MethodGet, "/stores/"+url.PathEscape(id), w.Values(), nil, &page)
	return &page, err
}

// Search runs a cached store's search for value.
func (c *Client) Search(ctx context.Context, id, value string) (*Page, error) {
	var page Page
	err := c.do(ctx, http.MethodGet, "/stores/"+url.PathEscape(id), url.Values{"search": {value}}, nil, &page)
	return &page, err
}

// Write writes data through a store.
func (c *Client) Write(ctx context.Context, id string, data any) (*Page, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var page Page
	err = c.do(ctx, http.MethodPost, "/stores/"+url.PathEscape(id), nil, body, &page)
	return &page, err
}

// Tree returns a tree store's nodes as JSON. When expand names a node key,
// that node is expanded first.
func (c *Client) Tree(ctx context.Context, id, expand string) (json.RawMessage, error) {
	var params url.Values
	if expand != "" {
		params = url.Values{"expand": {expand}}
	}
	var tree json.RawMessage
	err := c.do(ctx, http.MethodGet, "/stores/"+url.PathEscape(id)+"/tree", params, nil, &tree)
	return tree, err
}

// Collections lists the collections of the bundled data source.
func (c *Client) Collections(ctx context.Context) ([]string, error) {
	var names []string
	err := c.do(ctx, http.MethodGet, "/data", nil, nil, &names)
	return names, err
}

// Query reads a window of a collection.
func (c *Client) Query(ctx context.Context, collection string, w Window) (*Page, error) {
	var page Page
	err := c.do(ctx, http.MethodGet, "/data/"+url.PathEscape(collection), w.Values(), nil, &page)
	return &page, err
}

// Insert adds records to a collection.
func (c *Client) Insert(ctx context.Context, collection string, data any) (*Page, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var page Page
	err = c.do(ctx, http.MethodPost, "/data/"+url.PathEscape(collection), nil, body, &page)
	return &page, err
}

// DeleteCollection drops a collection.
func (c *Client) DeleteCollection(ctx context.Context, collection string) error {
	return c.do(ctx, http.MethodDelete, "/data/"+url.PathEscape(collection), nil, nil, nil)
}

// do sends a request and decodes the response into out when it is non-nil.
// Error responses become *Error carrying the server's message.
func (c *Client) do(ctx context.Context, method, p string, params url.Values, body []byte, out any) error {
	u := c.baseURL + p
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		e := &Error{Status: resp.StatusCode, Message: resp.Status}
		var msg struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&msg) == nil && msg.Error != "" {
			e.Message = msg.Error
		}
		return e
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

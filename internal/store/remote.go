package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/zot/ui-data/internal/query"
	"github.com/zot/ui-data/internal/quark"
	"github.com/zot/ui-data/internal/record"
)

// Mode selects how a Remote store addresses its data.
type Mode string

const (
	// ModeQuery appends ?limit=&skip=&sort=&filter= to the source.
	ModeQuery Mode = "query"
	// ModeREST appends /{limit}/{skip}?sort=&filter= to the source.
	ModeREST Mode = "rest"
	// ModeQuark calls a named in-process function instead of the network.
	ModeQuark Mode = "quark"
)

// ParseMode validates a mode name. The empty name is ModeQuery.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeQuery:
		return ModeQuery, nil
	case ModeREST:
		return ModeREST, nil
	case ModeQuark:
		return ModeQuark, nil
	}
	return "", fmt.Errorf("unknown store mode %q", s)
}

// Remote is a store whose data comes from an HTTP endpoint or a quark function.
type Remote struct {
	*Base
	opts Options

	source       string
	mode         Mode
	reader       string
	writer       string
	readerMethod string
	writerMethod string
	readerSet    bool
	writerSet    bool
	total        int
	hasTotal     bool
	rmu          sync.RWMutex
}

// NewRemote creates a disabled remote store in query mode.
func NewRemote(reg *Registry, id string, opts Options) *Remote {
	r := newRemote(reg, id, opts)
	r.Bind(r, r)
	return r
}

func newRemote(reg *Registry, id string, opts Options) *Remote {
	return &Remote{
		Base:         NewBase(reg, id, opts.Config),
		opts:         opts,
		mode:         ModeQuery,
		readerMethod: http.MethodGet,
		writerMethod: http.MethodPost,
	}
}

// Source returns the base URL.
func (r *Remote) Source() string {
	r.rmu.RLock()
	defer r.rmu.RUnlock()
	return r.source
}

// SetSource sets the base URL.
func (r *Remote) SetSource(s string) {
	r.rmu.Lock()
	defer r.rmu.Unlock()
	r.source = s
}

// Mode returns the addressing mode.
func (r *Remote) Mode() Mode {
	r.rmu.RLock()
	defer r.rmu.RUnlock()
	return r.mode
}

// SetMode switches the addressing mode and resets the reader and writer
// methods to GET and POST unless they were set explicitly.
func (r *Remote) SetMode(m Mode) {
	r.rmu.Lock()
	defer r.rmu.Unlock()
	r.mode = m
	if !r.readerSet {
		r.readerMethod = http.MethodGet
	}
	if !r.writerSet {
		r.writerMethod = http.MethodPost
	}
}

// SetReader sets the quark function name used for reads, or in HTTP modes
// a URL that replaces the source for reads.
func (r *Remote) SetReader(name string) {
	r.rmu.Lock()
	defer r.rmu.Unlock()
	r.reader = name
}

// SetWriter is SetReader for writes.
func (r *Remote) SetWriter(name string) {
	r.rmu.Lock()
	defer r.rmu.Unlock()
	r.writer = name
}

// SetReaderMethod overrides the HTTP method used for reads.
func (r *Remote) SetReaderMethod(method string) {
	r.rmu.Lock()
	defer r.rmu.Unlock()
	r.readerMethod = method
	r.readerSet = true
}

// SetWriterMethod overrides the HTTP method used for writes.
func (r *Remote) SetWriterMethod(method string) {
	r.rmu.Lock()
	defer r.rmu.Unlock()
	r.writerMethod = method
	r.writerSet = true
}

// Methods returns the reader and writer HTTP methods.
func (r *Remote) Methods() (reader, writer string) {
	r.rmu.RLock()
	defer r.rmu.RUnlock()
	return r.readerMethod, r.writerMethod
}

// Count returns the total reported by the last {data, total} response.
func (r *Remote) Count() (int, bool) {
	r.rmu.RLock()
	defer r.rmu.RUnlock()
	return r.total, r.hasTotal
}

func (r *Remote) resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("store %q: %w", r.id, ErrMissingSource)
	}
	if r.opts.BaseURL != "" && strings.HasPrefix(path, "/") {
		return strings.TrimSuffix(r.opts.BaseURL, "/") + path, nil
	}
	return path, nil
}

// BuildURL renders the read URL for q in the current mode.
func (r *Remote) BuildURL(q query.Query) (string, error) {
	r.rmu.RLock()
	base, mode := r.source, r.mode
	if r.reader != "" {
		base = r.reader
	}
	r.rmu.RUnlock()

	u, err := r.resolve(base)
	if err != nil {
		return "", err
	}

	switch mode {
	case ModeREST:
		v, err := q.Values()
		if err != nil {
			return "", err
		}
		u = strings.TrimSuffix(u, "/") + "/" + strconv.Itoa(q.Limit) + "/" + strconv.Itoa(q.Skip)
		if len(v) > 0 {
			u += sep(u) + v.Encode()
		}
		return u, nil
	case ModeQuark:
		return "", fmt.Errorf("store %q: quark mode has no URL: %w", r.id, ErrNotSupported)
	}
	qs, err := q.QueryString()
	if err != nil {
		return "", err
	}
	return u + sep(u) + qs, nil
}

func sep(u string) string {
	if strings.Contains(u, "?") {
		return "&"
	}
	return "?"
}

func (r *Remote) call(q query.Query, data any) quark.Call {
	return quark.Call{Skip: q.Skip, Limit: q.Limit, Filter: q.Filter, Sort: q.Sort, Data: data}
}

func (r *Remote) invoke(ctx context.Context, name string, c quark.Call) (any, error) {
	if r.opts.Quarks == nil {
		return nil, fmt.Errorf("store %q: %q: %w", r.id, name, quark.ErrFunctionNotFound)
	}
	return r.opts.Quarks.Invoke(ctx, name, c)
}

// OnRead fetches q from the network or the quark reader.
func (r *Remote) OnRead(ctx context.Context, q query.Query) (any, error) {
	r.rmu.RLock()
	mode, reader, method := r.mode, r.reader, r.readerMethod
	r.rmu.RUnlock()

	var result any
	var err error
	if mode == ModeQuark {
		result, err = r.invoke(ctx, reader, r.call(q, nil))
	} else {
		var u string
		if u, err = r.BuildURL(q); err != nil {
			return nil, err
		}
		result, err = r.do(ctx, method, u, nil)
	}
	if err != nil {
		return nil, err
	}

	return result, nil
}

// commitRead records the total of a read that was kept.
func (r *Remote) commitRead(raw any) {
	total, ok := record.Total(raw)
	r.rmu.Lock()
	r.total, r.hasTotal = total, ok
	r.rmu.Unlock()
}

// OnWrite sends data to the writer URL (or the source) or the quark writer.
func (r *Remote) OnWrite(ctx context.Context, q query.Query, data any) (any, error) {
	r.rmu.RLock()
	mode, writer, source, method := r.mode, r.writer, r.source, r.writerMethod
	r.rmu.RUnlock()

	if mode == ModeQuark {
		return r.invoke(ctx, writer, r.call(q, data))
	}
	target := source
	if writer != "" {
		target = writer
	}
	u, err := r.resolve(target)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encoding write data: %w", err)
	}
	return r.do(ctx, method, u, body)
}

func (r *Remote) do(ctx context.Context, method, u string, body []byte) (any, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := r.opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	r.config.Log(2, "store %s %s %s", r.id, method, u)
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%s %s: %s: %s", method, u, resp.Status, strings.TrimSpace(string(data)))
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	return json.RawMessage(data), nil
}

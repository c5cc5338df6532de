package server

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
	"github.com/zot/ui-data/internal/config"
	"github.com/zot/ui-data/internal/query"
	"github.com/zot/ui-data/internal/quark"
	"github.com/zot/ui-data/internal/record"
	"github.com/zot/ui-data/internal/tree"
)

func testConfig(stores ...config.StoreConfig) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Lua.Enabled = false
	cfg.Registry.WaitTimeout = config.Duration(2 * time.Second)
	cfg.Stores = stores
	return cfg
}

// newTestServer serves a server with a users collection of five people.
// setup runs before the configured stores are built.
func newTestServer(t *testing.T, cfg *config.Config, setup func(*Server)) (*Server, *httptest.Server) {
	t.Helper()
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	users := record.Wrap(
		map[string]any{"name": "Ann", "age": 34.0},
		map[string]any{"name": "Bob", "age": 27.0},
		map[string]any{"name": "Cid", "age": 45.0},
		map[string]any{"name": "Dee", "age": 19.0},
		map[string]any{"name": "Eve", "age": 31.0},
	)
	if err := s.Backend().Insert(context.Background(), "users", users); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if setup != nil {
		setup(s)
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Shutdown(context.Background())
		ts.Close()
	})
	if err := s.ConfigureStores(ts.URL); err != nil {
		t.Fatalf("ConfigureStores failed: %v", err)
	}
	return s, ts
}

type pageBody struct {
	Data  []map[string]any `json:"data"`
	Total *int             `json:"total"`
}

func getJSON(t *testing.T, u string, status int, v any) {
	t.Helper()
	resp, err := http.Get(u)
	if err != nil {
		t.Fatalf("GET %s failed: %v", u, err)
	}
	defer resp.Body.Close()
	decodeResponse(t, resp, status, v)
}

func postJSON(t *testing.T, u, body string, status int, v any) {
	t.Helper()
	resp, err := http.Post(u, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s failed: %v", u, err)
	}
	defer resp.Body.Close()
	decodeResponse(t, resp, status, v)
}

func decodeResponse(t *testing.T, resp *http.Response, status int, v any) {
	t.Helper()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != status {
		t.Fatalf("Expected status %d, got %d: %s", status, resp.StatusCode, data)
	}
	if v != nil {
		if err := json.Unmarshal(data, v); err != nil {
			t.Fatalf("Decoding %s failed: %v", data, err)
		}
	}
}

func filterName(name string) query.Query {
	return query.Query{Filter: query.Filter{{Name: "name", Value: name}}}
}

func names(rows []map[string]any) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i], _ = r["name"].(string)
	}
	return out
}

// TestDataQuery verifies query mode filters, sorts and pages the collection
func TestDataQuery(t *testing.T) {
	_, ts := newTestServer(t, testConfig(), nil)

	v := url.Values{}
	v.Set("limit", "2")
	v.Set("skip", "1")
	v.Set("sort", `[{"col":"age","ord":"desc"}]`)
	v.Set("filter", `[{"name":"age","op":"gt","value":20}]`)

	var page pageBody
	getJSON(t, ts.URL+"/data/users?"+v.Encode(), http.StatusOK, &page)
	if diff := cmp.Diff([]string{"Ann", "Eve"}, names(page.Data)); diff != "" {
		t.Errorf("Page mismatch (-want +got):\n%s", diff)
	}
	if page.Total == nil || *page.Total != 4 {
		t.Errorf("Expected total 4, got %v", page.Total)
	}
}

// TestDataRest verifies rest mode reads limit and skip from the path
func TestDataRest(t *testing.T) {
	_, ts := newTestServer(t, testConfig(), nil)

	var page pageBody
	getJSON(t, ts.URL+"/data/users/2/3", http.StatusOK, &page)
	if diff := cmp.Diff([]string{"Dee", "Eve"}, names(page.Data)); diff != "" {
		t.Errorf("Page mismatch (-want +got):\n%s", diff)
	}

	getJSON(t, ts.URL+"/data/users/x/0", http.StatusBadRequest, nil)
	getJSON(t, ts.URL+"/data/nothing", http.StatusOK, &page)
	if len(page.Data) != 0 || *page.Total != 0 {
		t.Errorf("Expected an empty unknown collection, got %v", page.Data)
	}
}

// TestDataInsert verifies posted records are appended and echoed
func TestDataInsert(t *testing.T) {
	_, ts := newTestServer(t, testConfig(), nil)

	var page pageBody
	postJSON(t, ts.URL+"/data/users", `[{"name":"Fay"},{"name":"Gus"}]`, http.StatusOK, &page)
	if diff := cmp.Diff([]string{"Fay", "Gus"}, names(page.Data)); diff != "" {
		t.Errorf("Echo mismatch (-want +got):\n%s", diff)
	}
	if *page.Total != 7 {
		t.Errorf("Expected 7 records, got %d", *page.Total)
	}

	var collections []string
	getJSON(t, ts.URL+"/data", http.StatusOK, &collections)
	if diff := cmp.Diff([]string{"users"}, collections); diff != "" {
		t.Errorf("Collections mismatch (-want +got):\n%s", diff)
	}
}

// TestStoreRead verifies configured stores read the data source through the store API
func TestStoreRead(t *testing.T) {
	cfg := testConfig(config.StoreConfig{ID: "users", Type: "remote", Source: "/data/users", Limit: 2})
	_, ts := newTestServer(t, cfg, nil)

	var ids []string
	getJSON(t, ts.URL+"/stores", http.StatusOK, &ids)
	if diff := cmp.Diff([]string{"users"}, ids); diff != "" {
		t.Errorf("Store ids mismatch (-want +got):\n%s", diff)
	}

	var page pageBody
	getJSON(t, ts.URL+"/stores/users", http.StatusOK, &page)
	if diff := cmp.Diff([]string{"Ann", "Bob"}, names(page.Data)); diff != "" {
		t.Errorf("Read mismatch (-want +got):\n%s", diff)
	}
	if page.Total == nil || *page.Total != 5 {
		t.Errorf("Expected total 5, got %v", page.Total)
	}

	getJSON(t, ts.URL+"/stores/users?skip=4", http.StatusOK, &page)
	if diff := cmp.Diff([]string{"Eve"}, names(page.Data)); diff != "" {
		t.Errorf("Windowed read mismatch (-want +got):\n%s", diff)
	}

	getJSON(t, ts.URL+"/stores/missing", http.StatusNotFound, nil)
	getJSON(t, ts.URL+"/stores/users?search=Ann", http.StatusBadRequest, nil)
}

// TestStoreRestMode verifies a rest mode store addresses the window in the path
func TestStoreRestMode(t *testing.T) {
	cfg := testConfig(config.StoreConfig{ID: "users", Source: "/data/users", Mode: "rest", Limit: 1})
	_, ts := newTestServer(t, cfg, nil)

	var page pageBody
	getJSON(t, ts.URL+"/stores/users?skip=2", http.StatusOK, &page)
	if diff := cmp.Diff([]string{"Cid"}, names(page.Data)); diff != "" {
		t.Errorf("Read mismatch (-want +got):\n%s", diff)
	}
}

// TestStoreSearch verifies cached stores search their snapshot
func TestStoreSearch(t *testing.T) {
	cfg := testConfig(config.StoreConfig{ID: "people", Type: "cached", Source: "/data/users"})
	_, ts := newTestServer(t, cfg, nil)

	var page pageBody
	getJSON(t, ts.URL+"/stores/people?search=Cid", http.StatusOK, &page)
	if diff := cmp.Diff([]string{"Cid"}, names(page.Data)); diff != "" {
		t.Errorf("Search mismatch (-want +got):\n%s", diff)
	}
	if *page.Total != 1 {
		t.Errorf("Expected total 1, got %d", *page.Total)
	}

	getJSON(t, ts.URL+"/stores/people?search=", http.StatusOK, &page)
	if len(page.Data) != 5 {
		t.Errorf("Expected an empty search to clear the filter, got %d", len(page.Data))
	}
}

// TestStoreWrite verifies writes go through the store to the data source
func TestStoreWrite(t *testing.T) {
	cfg := testConfig(config.StoreConfig{ID: "users", Source: "/data/users"})
	s, ts := newTestServer(t, cfg, nil)

	var page pageBody
	postJSON(t, ts.URL+"/stores/users", `{"name":"Zed","age":50}`, http.StatusOK, &page)
	if diff := cmp.Diff([]string{"Zed"}, names(page.Data)); diff != "" {
		t.Errorf("Write mismatch (-want +got):\n%s", diff)
	}

	res, err := s.Backend().Query(context.Background(), "users", filterName("Zed"))
	if err != nil || len(res.Records) != 1 {
		t.Errorf("Expected Zed in storage, got %v (%v)", res.Records, err)
	}

	postJSON(t, ts.URL+"/stores/users", `{bad`, http.StatusBadRequest, nil)
}

// TestStoreTree verifies tree stores export their tree and load folders on expand
func TestStoreTree(t *testing.T) {
	var calls atomic.Int32
	cfg := testConfig(config.StoreConfig{ID: "files", Type: "tree", Mode: "quark", Reader: "files.list"})
	_, ts := newTestServer(t, cfg, func(s *Server) {
		s.Quarks().Register("files.list", func(_ context.Context, c quark.Call) (any, error) {
			calls.Add(1)
			for _, cond := range c.Filter {
				if cond.Name == "key" && cond.Value == "docs" {
					return []any{map[string]any{"key": "docs/a", "value": "A"}}, nil
				}
			}
			return []any{
				map[string]any{"key": "docs", "value": "Docs", "folder": true},
				map[string]any{"key": "readme", "value": "Readme"},
			}, nil
		})
	})

	var nodes []tree.NodeJSON
	getJSON(t, ts.URL+"/stores/files/tree", http.StatusOK, &nodes)
	if len(nodes) != 2 || nodes[0].Key != "docs" || nodes[0].Items == nil || len(*nodes[0].Items) != 0 {
		t.Fatalf("Expected an unloaded docs folder and readme, got %+v", nodes)
	}

	getJSON(t, ts.URL+"/stores/files/tree?expand=docs", http.StatusOK, &nodes)
	if items := *nodes[0].Items; len(items) != 1 || items[0].Key != "docs/a" || !nodes[0].Opened {
		t.Errorf("Expected docs to open with one child, got %+v", nodes[0])
	}
	if calls.Load() != 2 {
		t.Errorf("Expected 2 fetches, got %d", calls.Load())
	}

	getJSON(t, ts.URL+"/stores/files/tree?expand=nope", http.StatusNotFound, nil)
	getJSON(t, ts.URL+"/stores/files", http.StatusOK, nil)
	postJSON(t, ts.URL+"/stores/files", `{}`, http.StatusMethodNotAllowed, nil)
}

// TestStoreTreeLoadError verifies a failed folder load is reported and
// retried on the next expand
func TestStoreTreeLoadError(t *testing.T) {
	var failed atomic.Bool
	cfg := testConfig(config.StoreConfig{ID: "files", Type: "tree", Mode: "quark", Reader: "files.list"})
	_, ts := newTestServer(t, cfg, func(s *Server) {
		s.Quarks().Register("files.list", func(_ context.Context, c quark.Call) (any, error) {
			for _, cond := range c.Filter {
				if cond.Name == "key" && cond.Value == "docs" {
					if failed.CompareAndSwap(false, true) {
						return nil, errors.New("disk offline")
					}
					return []any{map[string]any{"key": "docs/a", "value": "A"}}, nil
				}
			}
			return []any{map[string]any{"key": "docs", "value": "Docs", "folder": true}}, nil
		})
	})

	var nodes []tree.NodeJSON
	getJSON(t, ts.URL+"/stores/files/tree", http.StatusOK, &nodes)
	getJSON(t, ts.URL+"/stores/files/tree?expand=docs", http.StatusBadGateway, nil)

	getJSON(t, ts.URL+"/stores/files/tree?expand=docs", http.StatusOK, &nodes)
	if len(nodes) != 1 || nodes[0].Items == nil || len(*nodes[0].Items) != 1 {
		t.Errorf("Expected docs to load on retry, got %+v", nodes)
	}
}

// frameReader reads frames from a websocket, unpacking batches.
type frameReader struct {
	conn    *websocket.Conn
	pending []Frame
}

func (r *frameReader) next(t *testing.T) Frame {
	t.Helper()
	for len(r.pending) == 0 {
		r.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := r.conn.ReadMessage()
		if err != nil {
			t.Fatalf("Reading frame failed: %v", err)
		}
		data = bytes.TrimSpace(data)
		if len(data) > 0 && data[0] == '[' {
			if err := json.Unmarshal(data, &r.pending); err != nil {
				t.Fatalf("Decoding batch failed: %v", err)
			}
		} else {
			var f Frame
			if err := json.Unmarshal(data, &f); err != nil {
				t.Fatalf("Decoding frame failed: %v", err)
			}
			r.pending = append(r.pending, f)
		}
	}
	f := r.pending[0]
	r.pending = r.pending[1:]
	return f
}

func dialEvents(t *testing.T, ts *httptest.Server, storeID string) (*frameReader, *http.Response, error) {
	t.Helper()
	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/events?store=" + url.QueryEscape(storeID)
	conn, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		return nil, resp, err
	}
	t.Cleanup(func() { conn.Close() })
	return &frameReader{conn: conn}, resp, nil
}

// TestWebSocketEvents verifies store events reach websocket clients
func TestWebSocketEvents(t *testing.T) {
	cfg := testConfig(config.StoreConfig{ID: "users", Source: "/data/users", Limit: 1})
	_, ts := newTestServer(t, cfg, nil)

	frames, _, err := dialEvents(t, ts, "users")
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	if f := frames.next(t); f.Event != "register" || f.Store != "users" {
		t.Fatalf("Expected an initial register frame, got %+v", f)
	}

	getJSON(t, ts.URL+"/stores/users", http.StatusOK, nil)
	f := frames.next(t)
	if f.Event != "read" || f.Owner != httpOwner || len(f.Data) != 1 {
		t.Errorf("Expected a read frame with one record, got %+v", f)
	}

	getJSON(t, ts.URL+"/stores/users?sort=notjson", http.StatusBadRequest, nil)
}

// TestWebSocketWaitsForStore verifies the relay waits for a store to register
// and follows it through unregistration
func TestWebSocketWaitsForStore(t *testing.T) {
	s, ts := newTestServer(t, testConfig(), nil)

	go func() {
		time.Sleep(50 * time.Millisecond)
		if _, _, err := s.Registry().NewHandler("remote", "late", true); err != nil {
			t.Errorf("NewHandler failed: %v", err)
		}
	}()

	frames, _, err := dialEvents(t, ts, "late")
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	if f := frames.next(t); f.Event != "register" {
		t.Fatalf("Expected register, got %+v", f)
	}

	st, _ := s.Registry().Find("late")
	if err := st.Disable(); err != nil {
		t.Fatalf("Disable failed: %v", err)
	}
	if f := frames.next(t); f.Event != "unregister" || f.Store != "late" {
		t.Errorf("Expected unregister, got %+v", f)
	}
}

// TestWebSocketTimeout verifies a store that never registers fails the upgrade
func TestWebSocketTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.Registry.WaitTimeout = config.Duration(50 * time.Millisecond)
	_, ts := newTestServer(t, cfg, nil)

	_, resp, err := dialEvents(t, ts, "never")
	if err == nil {
		t.Fatal("Expected the dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusGatewayTimeout {
		t.Errorf("Expected 504, got %v", resp)
	}

	if _, resp, _ := dialEvents(t, ts, ""); resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 without a store, got %v", resp)
	}
}

// TestLongPoll verifies poll clients receive store events and can close
func TestLongPoll(t *testing.T) {
	cfg := testConfig(config.StoreConfig{ID: "users", Source: "/data/users"})
	s, ts := newTestServer(t, cfg, nil)

	var opened map[string]string
	postJSON(t, ts.URL+"/events/poll?store=users", "", http.StatusOK, &opened)
	client := opened["client"]
	if client == "" || opened["store"] != "users" {
		t.Fatalf("Expected a client id, got %v", opened)
	}

	var frames []Frame
	getJSON(t, ts.URL+"/events/poll/"+client, http.StatusOK, &frames)
	if len(frames) != 0 {
		t.Errorf("Expected no frames yet, got %+v", frames)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		st, _ := s.Registry().Find("users")
		st.Read(context.Background(), "poller")
	}()
	getJSON(t, ts.URL+"/events/poll/"+client+"?wait=2s", http.StatusOK, &frames)
	if len(frames) != 1 || frames[0].Event != "read" || frames[0].Owner != "poller" {
		t.Errorf("Expected one read frame, got %+v", frames)
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/events/poll/"+client, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil || resp.StatusCode != http.StatusNoContent {
		t.Fatalf("Expected 204 on close, got %v (%v)", resp, err)
	}
	resp.Body.Close()
	getJSON(t, ts.URL+"/events/poll/"+client, http.StatusNotFound, nil)
	getJSON(t, ts.URL+"/events/poll/"+client+"?wait=bad", http.StatusNotFound, nil)
}

// TestStartHTTP verifies the server listens on a free port and builds its stores
func TestStartHTTP(t *testing.T) {
	cfg := testConfig(config.StoreConfig{ID: "users", Source: "/data/users"})
	cfg.Server.Host = "127.0.0.1"
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Shutdown(context.Background())

	base, err := s.StartHTTP(0)
	if err != nil {
		t.Fatalf("StartHTTP failed: %v", err)
	}
	if base != s.BaseURL() || cfg.Server.Port == 0 {
		t.Errorf("Expected the real port in %s", base)
	}
	var ids []string
	getJSON(t, base+"/stores", http.StatusOK, &ids)
	if diff := cmp.Diff([]string{"users"}, ids); diff != "" {
		t.Errorf("Store ids mismatch (-want +got):\n%s", diff)
	}
}

// TestBundledData verifies a bundle supplies seed collections and scripts
// when no directories are configured
func TestBundledData(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range map[string]string{
		"seed/colors.json": `[{"name":"red"},{"name":"blue"}]`,
		"lua/greet.lua":    `return { hello = function(call) return { { text = "hi" } } end }`,
	} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		w.Write([]byte(content))
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	z, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatal(err)
	}
	saved := openBundle
	openBundle = func() (*zip.Reader, error) { return z, nil }
	defer func() { openBundle = saved }()

	cfg := testConfig()
	cfg.Lua.Enabled = true
	cfg.Lua.Path = filepath.Join(t.TempDir(), "missing")
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Shutdown(context.Background())

	res, err := s.Backend().Query(context.Background(), "colors", query.Query{})
	if err != nil || res.Total != 2 {
		t.Errorf("Expected 2 bundled colors, got %d (%v)", res.Total, err)
	}
	if s.GetLuaRuntime() == nil {
		t.Fatal("Expected the bundled scripts to start Lua")
	}
	if _, err := s.Quarks().Lookup("greet.hello"); err != nil {
		t.Errorf("Expected greet.hello registered: %v", err)
	}
}

// TestMCPUsesStoreExecutor verifies MCP tool calls wait behind HTTP work
// queued on the same store
func TestMCPUsesStoreExecutor(t *testing.T) {
	cfg := testConfig(config.StoreConfig{ID: "users", Type: "cached", Source: "/data/users"})
	s, _ := newTestServer(t, cfg, nil)

	busy := make(chan struct{})
	release := make(chan struct{})
	go run(s.execs, "users", func() (struct{}, error) {
		close(busy)
		<-release
		return struct{}{}, nil
	})
	<-busy

	done := make(chan string)
	go func() {
		msg := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"read_store","arguments":{"id":"users","limit":2}}}`
		resp := s.mcpServer.MCP().HandleMessage(context.Background(), json.RawMessage(msg))
		data, _ := json.Marshal(resp)
		done <- string(data)
	}()

	select {
	case got := <-done:
		t.Fatalf("read_store finished while the store was busy: %s", got)
	case <-time.After(100 * time.Millisecond):
	}
	close(release)

	select {
	case got := <-done:
		if !strings.Contains(got, "Ann") || strings.Contains(got, `"isError":true`) {
			t.Errorf("Unexpected read_store result: %s", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("read_store never finished")
	}
}

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/zot/ui-data/internal/config"
	"github.com/zot/ui-data/internal/query"
	"github.com/zot/ui-data/internal/quark"
	"github.com/zot/ui-data/internal/record"
	"github.com/zot/ui-data/internal/registry"
	"github.com/zot/ui-data/internal/storage"
	"github.com/zot/ui-data/internal/store"
)

// httpOwner is the owner of reads and writes issued through the store API.
const httpOwner = "http"

// maxPollWait caps the wait parameter of a long poll.
const maxPollWait = time.Minute

// storeResult is the response body of the store API.
type storeResult struct {
	Records []*record.Record `json:"data"`
	Total   *int             `json:"total,omitempty"`
}

// HTTPEndpoint serves the data source, the store API and the event feeds.
type HTTPEndpoint struct {
	config     *config.Config
	registry   *store.Registry
	backend    storage.Backend
	execs      *executors
	wsEndpoint *WebSocketEndpoint
	polls      *PendingQueueManager
	mux        *http.ServeMux
}

// NewHTTPEndpoint creates a new HTTP endpoint.
func NewHTTPEndpoint(cfg *config.Config, reg *store.Registry, backend storage.Backend, execs *executors, ws *WebSocketEndpoint, polls *PendingQueueManager) *HTTPEndpoint {
	h := &HTTPEndpoint{
		config:     cfg,
		registry:   reg,
		backend:    backend,
		execs:      execs,
		wsEndpoint: ws,
		polls:      polls,
		mux:        http.NewServeMux(),
	}
	h.setupRoutes()
	return h
}

func (h *HTTPEndpoint) setupRoutes() {
	h.mux.HandleFunc("GET /data", h.handleCollections)
	h.mux.HandleFunc("GET /data/{collection}", h.handleQuery)
	h.mux.HandleFunc("GET /data/{collection}/{limit}/{skip}", h.handleQuery)
	h.mux.HandleFunc("POST /data/{collection}", h.handleInsert)
	h.mux.HandleFunc("DELETE /data/{collection}", h.handleDeleteCollection)

	h.mux.HandleFunc("GET /stores", h.handleStores)
	h.mux.HandleFunc("GET /stores/{id}", h.handleStoreRead)
	h.mux.HandleFunc("POST /stores/{id}", h.handleStoreWrite)
	h.mux.HandleFunc("GET /stores/{id}/tree", h.handleStoreTree)

	h.mux.HandleFunc("GET /events", h.wsEndpoint.HandleWebSocket)
	h.mux.HandleFunc("POST /events/poll", h.handlePollOpen)
	h.mux.HandleFunc("GET /events/poll/{client}", h.handlePoll)
	h.mux.HandleFunc("DELETE /events/poll/{client}", h.handlePollClose)
}

// ServeHTTP implements http.Handler.
func (h *HTTPEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.config.Log(2, "%s %s", r.Method, r.URL.RequestURI())
	h.mux.ServeHTTP(w, r)
}

// handleCollections lists the data source's collections.
func (h *HTTPEndpoint) handleCollections(w http.ResponseWriter, r *http.Request) {
	names, err := h.backend.Collections(r.Context())
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, names)
}

// handleQuery answers query mode (?limit&skip&sort&filter) and rest mode
// (/{limit}/{skip} with optional sort and filter parameters).
func (h *HTTPEndpoint) handleQuery(w http.ResponseWriter, r *http.Request) {
	q, err := query.Parse(r.URL.Query())
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if s := r.PathValue("limit"); s != "" {
		if q.Limit, err = query.ParseCount("limit", s); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if q.Skip, err = query.ParseCount("skip", r.PathValue("skip")); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	res, err := h.backend.Query(r.Context(), r.PathValue("collection"), q)
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if res.Records == nil {
		res.Records = []*record.Record{}
	}
	writeJSON(w, res)
}

// handleInsert appends the posted records (an array, a {data} envelope or a
// single value) and echoes them with the collection's new size.
func (h *HTTPEndpoint) handleInsert(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	recs, err := record.Normalize(json.RawMessage(body))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	collection := r.PathValue("collection")
	if err := h.backend.Insert(r.Context(), collection, recs); err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	all, err := h.backend.Query(r.Context(), collection, query.Query{})
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []*record.Record{}
	}
	h.config.Log(3, "data %s: inserted %d records", collection, len(recs))
	writeJSON(w, storage.Result{Records: recs, Total: all.Total})
}

func (h *HTTPEndpoint) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	if err := h.backend.Delete(r.Context(), r.PathValue("collection")); err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleStores lists the registered store ids.
func (h *HTTPEndpoint) handleStores(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.registry.IDs())
}

// findStore resolves the {id} path value, writing a 404 if it is unknown.
func (h *HTTPEndpoint) findStore(w http.ResponseWriter, r *http.Request) (store.Store, bool) {
	id := r.PathValue("id")
	s, ok := h.registry.Find(id)
	if !ok {
		writeError(w, fmt.Sprintf("store %q not registered", id), http.StatusNotFound)
	}
	return s, ok
}

// handleStoreRead reads a store on its executor. Window parameters given in
// the request (skip, limit, sort, filter) are applied to the store first;
// search runs a cached store's search instead of a plain read.
func (h *HTTPEndpoint) handleStoreRead(w http.ResponseWriter, r *http.Request) {
	s, ok := h.findStore(w, r)
	if !ok {
		return
	}
	params := r.URL.Query()
	q, err := query.Parse(params)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	search, searching := params["search"]
	if searching {
		if _, ok := s.(*store.Cached); !ok {
			writeError(w, fmt.Sprintf("store %q cannot search", s.ID()), http.StatusBadRequest)
			return
		}
	}

	res, err := run(h.execs, s.ID(), func() (storeResult, error) {
		if params.Has("skip") {
			s.SetSkip(q.Skip)
		}
		if params.Has("limit") {
			s.SetLimit(q.Limit)
		}
		if params.Has("sort") {
			s.SetSort(q.Sort)
		}
		if params.Has("filter") {
			s.SetFilter(q.Filter)
		}
		var recs []*record.Record
		var err error
		if searching {
			recs, err = s.(*store.Cached).Search(r.Context(), httpOwner, search[0])
		} else {
			recs, err = s.Read(r.Context(), httpOwner)
		}
		if err != nil {
			return storeResult{}, err
		}
		res := storeResult{Records: recs}
		if c, ok := s.(store.Counter); ok {
			if n, ok := c.Count(); ok {
				res.Total = &n
			}
		}
		return res, nil
	})
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	if res.Records == nil {
		res.Records = []*record.Record{}
	}
	writeJSON(w, res)
}

// handleStoreWrite writes the posted JSON through a store.
func (h *HTTPEndpoint) handleStoreWrite(w http.ResponseWriter, r *http.Request) {
	s, ok := h.findStore(w, r)
	if !ok {
		return
	}
	var data any
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		writeError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	recs, err := run(h.execs, s.ID(), func() ([]*record.Record, error) {
		return s.Write(r.Context(), httpOwner, data)
	})
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	if recs == nil {
		recs = []*record.Record{}
	}
	writeJSON(w, storeResult{Records: recs})
}

// handleStoreTree returns a tree store's materialized tree, reading the top
// level first if nothing is loaded yet. ?expand=KEY expands that folder,
// which loads its children on first use.
func (h *HTTPEndpoint) handleStoreTree(w http.ResponseWriter, r *http.Request) {
	s, ok := h.findStore(w, r)
	if !ok {
		return
	}
	tr, ok := s.(*store.TreeReader)
	if !ok {
		writeError(w, fmt.Sprintf("store %q is not a tree store", s.ID()), http.StatusBadRequest)
		return
	}
	expand := r.URL.Query().Get("expand")
	data, err := run(h.execs, s.ID(), func() ([]byte, error) {
		t := tr.Tree()
		if t.Root().Len() == 0 {
			if _, err := tr.Read(r.Context(), httpOwner); err != nil {
				return nil, err
			}
		}
		if expand != "" {
			n, ok := t.FindKey(expand)
			if !ok {
				return nil, fmt.Errorf("node %q: %w", expand, errNodeNotFound)
			}
			if err := n.ExpandContext(r.Context()); err != nil {
				return nil, err
			}
		}
		return t.ToJSON()
	})
	if err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// handlePollOpen opens a long-poll feed for ?store=ID and returns its client id.
func (h *HTTPEndpoint) handlePollOpen(w http.ResponseWriter, r *http.Request) {
	storeID := r.URL.Query().Get("store")
	if storeID == "" {
		writeError(w, "missing store parameter", http.StatusBadRequest)
		return
	}
	if _, err := awaitStore(r.Context(), h.config, h.registry, storeID); err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	id := h.polls.Open(storeID, func(sink func(Frame)) func() {
		return subscribe(h.registry, storeID, sink)
	})
	writeJSON(w, map[string]string{"client": id, "store": storeID})
}

// handlePoll returns the client's pending frames, waiting up to ?wait for one.
func (h *HTTPEndpoint) handlePoll(w http.ResponseWriter, r *http.Request) {
	q, ok := h.polls.GetQueue(r.PathValue("client"))
	if !ok {
		writeError(w, "unknown poll client", http.StatusNotFound)
		return
	}
	var wait time.Duration
	if s := r.URL.Query().Get("wait"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d < 0 {
			writeError(w, fmt.Sprintf("invalid wait %q", s), http.StatusBadRequest)
			return
		}
		wait = min(d, maxPollWait)
	}
	frames := q.Poll(r.Context(), wait)
	if frames == nil {
		frames = []Frame{}
	}
	writeJSON(w, frames)
}

func (h *HTTPEndpoint) handlePollClose(w http.ResponseWriter, r *http.Request) {
	if !h.polls.RemoveQueue(r.PathValue("client")) {
		writeError(w, "unknown poll client", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

var errNodeNotFound = errors.New("node not found")

// statusFor maps store errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotRegistered), errors.Is(err, store.ErrStale):
		return http.StatusConflict
	case errors.Is(err, store.ErrNotSupported), errors.Is(err, store.ErrNotImplemented):
		return http.StatusMethodNotAllowed
	case errors.Is(err, registry.ErrCancelled):
		return http.StatusGatewayTimeout
	case errors.Is(err, errNodeNotFound), errors.Is(err, quark.ErrFunctionNotFound):
		return http.StatusNotFound
	case errors.Is(err, errStopped):
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

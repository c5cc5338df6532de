package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/zot/ui-data/internal/query"
	"github.com/zot/ui-data/internal/record"
	"github.com/zot/ui-data/internal/store"
)

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("list_stores",
		mcp.WithDescription("List the registered stores with their type, source and current window"),
	), s.listStores)

	s.mcp.AddTool(mcp.NewTool("read_store",
		mcp.WithDescription("Read a store's current window. Given skip, limit, sort or filter replace the store's settings before the read"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Store id")),
		mcp.WithNumber("skip", mcp.Description("Records to skip")),
		mcp.WithNumber("limit", mcp.Description("Maximum records to return (0 = all)")),
		mcp.WithString("sort", mcp.Description(`Sort as JSON, e.g. [{"col":"name","ord":"asc"}]`)),
		mcp.WithString("filter", mcp.Description(`Filter as JSON, e.g. [{"name":"age","op":"gt","value":30}]`)),
	), s.readStore)

	s.mcp.AddTool(mcp.NewTool("search_store",
		mcp.WithDescription("Search a cached store for records with any field matching value"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Store id")),
		mcp.WithString("value", mcp.Required(), mcp.Description("Value to search for")),
	), s.searchStore)

	s.mcp.AddTool(mcp.NewTool("write_store",
		mcp.WithDescription("Write records through a store"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Store id")),
		mcp.WithString("data", mcp.Required(), mcp.Description("Records as JSON (an object or an array)")),
	), s.writeStore)

	s.mcp.AddTool(mcp.NewTool("list_quarks",
		mcp.WithDescription("List the quark functions stores can use as readers and writers"),
	), s.listQuarks)

	if s.runtime != nil {
		s.mcp.AddTool(mcp.NewTool("load_script",
			mcp.WithDescription("Load Lua code returning a table of functions; each becomes the quark NAME.FUNCTION"),
			mcp.WithString("name", mcp.Required(), mcp.Description("Script name")),
			mcp.WithString("code", mcp.Required(), mcp.Description("Lua source code")),
		), s.loadScript)
	}
}

// lookup finds the store named by the id argument.
func (s *Server) lookup(req mcp.CallToolRequest) (store.Store, *mcp.CallToolResult) {
	id, err := req.RequireString("id")
	if err != nil {
		return nil, mcp.NewToolResultError(err.Error())
	}
	st, ok := s.registry.Find(id)
	if !ok {
		return nil, mcp.NewToolResultError(fmt.Sprintf("store %q not registered", id))
	}
	return st, nil
}

func (s *Server) listStores(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids := s.registry.IDs()
	infos := make([]StoreInfo, 0, len(ids))
	for _, id := range ids {
		if st, ok := s.registry.Find(id); ok {
			infos = append(infos, describe(st))
		}
	}
	return jsonResult(infos)
}

func (s *Server) readStore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, errResult := s.lookup(req)
	if errResult != nil {
		return errResult, nil
	}
	args := req.GetArguments()
	var sort query.Sort
	if js := req.GetString("sort", ""); js != "" {
		if err := json.Unmarshal([]byte(js), &sort); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid sort: %v", err)), nil
		}
	}
	var filter query.Filter
	if js := req.GetString("filter", ""); js != "" {
		if err := json.Unmarshal([]byte(js), &filter); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid filter: %v", err)), nil
		}
	}

	s.config.Log(2, "mcp read_store %s", st.ID())
	var res ReadResult
	err := s.exec(st.ID(), func() error {
		if _, ok := args["skip"]; ok {
			st.SetSkip(max(req.GetInt("skip", 0), 0))
		}
		if _, ok := args["limit"]; ok {
			st.SetLimit(max(req.GetInt("limit", 0), 0))
		}
		if sort != nil {
			st.SetSort(sort)
		}
		if filter != nil {
			st.SetFilter(filter)
		}
		recs, err := st.Read(ctx, owner)
		res = readResult(st, recs)
		return err
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) searchStore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, errResult := s.lookup(req)
	if errResult != nil {
		return errResult, nil
	}
	value, err := req.RequireString("value")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	c, ok := st.(*store.Cached)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("store %q is not a cached store", st.ID())), nil
	}
	var res ReadResult
	err = s.exec(st.ID(), func() error {
		recs, err := c.Search(ctx, owner, value)
		res = readResult(st, recs)
		return err
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) writeStore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, errResult := s.lookup(req)
	if errResult != nil {
		return errResult, nil
	}
	js, err := req.RequireString("data")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var data any
	if err := json.Unmarshal([]byte(js), &data); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid data: %v", err)), nil
	}
	var recs []*record.Record
	err = s.exec(st.ID(), func() error {
		var err error
		recs, err = st.Write(ctx, owner, data)
		return err
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(ReadResult{Data: readResult(st, recs).Data})
}

func (s *Server) listQuarks(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	names := s.quarks.Names()
	if names == nil {
		names = []string{}
	}
	return jsonResult(names)
}

func (s *Server) loadScript(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	code, err := req.RequireString("code")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	m, err := s.runtime.LoadCode(name, code)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.config.Log(1, "mcp loaded script %s", name)
	return jsonResult(ScriptResult{Script: m.Name, Functions: m.Functions})
}

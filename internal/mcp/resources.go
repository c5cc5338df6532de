package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	storesURI = "ui-data://stores"
	quarksURI = "ui-data://quarks"
)

func (s *Server) registerResources() {
	s.mcp.AddResource(mcp.NewResource(storesURI, "Stores",
		mcp.WithResourceDescription("Registered stores and their current windows"),
		mcp.WithMIMEType("application/json"),
	), s.jsonResource(func() any {
		ids := s.registry.IDs()
		infos := make([]StoreInfo, 0, len(ids))
		for _, id := range ids {
			if st, ok := s.registry.Find(id); ok {
				infos = append(infos, describe(st))
			}
		}
		return infos
	}))

	s.mcp.AddResource(mcp.NewResource(quarksURI, "Quark Functions",
		mcp.WithResourceDescription("Names of the registered quark functions"),
		mcp.WithMIMEType("application/json"),
	), s.jsonResource(func() any {
		names := s.quarks.Names()
		if names == nil {
			names = []string{}
		}
		return names
	}))
}

// jsonResource serves the JSON rendering of what content returns.
func (s *Server) jsonResource(content func() any) func(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return func(_ context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		data, err := json.Marshal(content())
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	}
}

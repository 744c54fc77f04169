// Package mcpserver exposes a yield tree to MCP clients over stdio.
package mcpserver

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/agentic-research/yieldtree/internal/keymap"
	"github.com/agentic-research/yieldtree/internal/tree"
)

const instructions = `Tools for reading an exoplanet yield-simulation output directory.
Quantities are addressed by canonical key; call list_keys first to see which
keys this directory can answer, then get_keys to read values with units.`

// Answer is the structured form of one resolved key.
type Answer struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Unit   string `json:"unit,omitempty"`
	Source string `json:"source"`
}

// KeyInfo describes one canonical key.
type KeyInfo struct {
	Key     string   `json:"key"`
	Present bool     `json:"present"`
	Comment string   `json:"comment,omitempty"`
	Sources []string `json:"sources,omitempty"`
}

type handlers struct {
	root *tree.Directory
	keys *keymap.Table
}

// New returns an MCP server answering from root.
func New(root *tree.Directory, km *keymap.Table, version string) *server.MCPServer {
	h := &handlers{root: root, keys: km}
	s := server.NewMCPServer("yieldtree", version,
		server.WithToolCapabilities(false),
		server.WithInstructions(instructions),
	)

	s.AddTool(mcp.NewTool("get_keys",
		mcp.WithDescription("Resolve canonical keys to values with units and the file that answered"),
		mcp.WithArray("keys", mcp.Required(), mcp.WithStringItems(), mcp.Description("Canonical keys, e.g. star_dist")),
	), h.getKeys)

	s.AddTool(mcp.NewTool("list_keys",
		mcp.WithDescription("List canonical keys and whether this directory can answer them"),
		mcp.WithBoolean("present_only", mcp.Description("Only list keys that can be answered")),
	), h.listKeys)

	s.AddTool(mcp.NewTool("show_tree",
		mcp.WithDescription("Show the directory tree with the data-source kind of every file"),
		mcp.WithNumber("max_children", mcp.Description("Children listed per directory, 0 for all")),
	), h.showTree)

	return s
}

// Serve runs s on stdin and stdout until the client disconnects.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func (h *handlers) getKeys(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	keys, err := req.RequireStringSlice("keys")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var out []Answer
	var text strings.Builder
	for _, k := range keys {
		a, ok, err := tree.Locate(h.root, k)
		if err != nil {
			fmt.Fprintf(&text, "%s: error: %v\n", k, err)
			continue
		}
		if !ok {
			fmt.Fprintf(&text, "%s: not found\n", k)
			continue
		}
		ans := Answer{Key: k, Value: a.Value.String(), Source: a.Source}
		if a.Value.Unit != nil {
			ans.Unit = a.Value.Unit.Symbol
		}
		out = append(out, ans)
		fmt.Fprintf(&text, "%s = %s (%s)\n", k, ans.Value, a.Source)
	}
	return mcp.NewToolResultStructured(map[string]any{"answers": out}, text.String()), nil
}

func (h *handlers) listKeys(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	presentOnly := req.GetBool("present_only", false)

	var out []KeyInfo
	var text strings.Builder
	for _, k := range h.keys.Keys() {
		has := h.root.HasKey(k)
		if presentOnly && !has {
			continue
		}
		info := KeyInfo{Key: k, Present: has}
		if e, ok := h.keys.Entry(k); ok {
			info.Comment = e.Comment
			info.Sources = e.SourceNames()
		}
		out = append(out, info)
		mark := "-"
		if has {
			mark = "yes"
		}
		fmt.Fprintf(&text, "%s\t%s\t%s\n", k, mark, info.Comment)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return mcp.NewToolResultStructured(map[string]any{"keys": out}, text.String()), nil
}

func (h *handlers) showTree(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("max_children", 0)
	if limit < 0 {
		return mcp.NewToolResultError("max_children must not be negative"), nil
	}
	return mcp.NewToolResultText(h.root.DisplayTree(limit)), nil
}

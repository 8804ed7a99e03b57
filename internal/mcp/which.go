package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type whichParams struct {
	Name string `json:"name" jsonschema:"executable name to look up, e.g. git"`
}

func (h *handler) whichHandler(ctx context.Context, req *mcp.CallToolRequest, params whichParams) (*mcp.CallToolResult, any, error) {
	if params.Name == "" {
		return errorResult("name is required")
	}
	path, ok := h.runner.Which(params.Name)
	if !ok {
		return errorResult(fmt.Sprintf("%s: not found in PATH", params.Name))
	}
	return textResult(path)
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/passagekit/passage/internal/retriever"
)

// newMCPHandler builds the MCP tool server. It is served stateless over
// streamable HTTP so any client request can be handled by any replica.
func newMCPHandler(retr *retriever.Retriever, logger *slog.Logger) http.Handler {
	s := mcpserver.NewMCPServer(
		"passage",
		serverVersion,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithInstructions("Retrieves relevant passages from an indexed document collection. Use the retrieve tool to ground answers in stored content."),
	)

	tool := mcp.NewTool("retrieve",
		mcp.WithDescription("Retrieve the most relevant passages for a natural language query"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The natural language query to search for"),
		),
		mcp.WithString("collection",
			mcp.Description("Collection to search; the server default is used when empty"),
		),
		mcp.WithNumber("top_k",
			mcp.Description("How many candidates to fetch from the vector store"),
		),
		mcp.WithNumber("final_k",
			mcp.Description("Maximum number of passages to return"),
		),
		mcp.WithNumber("budget",
			mcp.Description("Token budget across the returned passages"),
		),
		mcp.WithObject("filter",
			mcp.Description("Key/value metadata constraints; only passages matching every pair are returned"),
		),
	)
	s.AddTool(tool, retrieveToolHandler(retr, logger))

	return mcpserver.NewStreamableHTTPServer(s, mcpserver.WithStateLess(true))
}

// retrieveToolHandler adapts the retriever to the MCP tool contract.
// Results are returned as a JSON text payload; classified retrieval
// failures become tool errors with sanitized messages.
func retrieveToolHandler(retr *retriever.Retriever, logger *slog.Logger) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := request.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		filter, err := filterArg(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		result, err := retr.Retrieve(ctx, query, retriever.Options{
			Collection: request.GetString("collection", ""),
			TopK:       request.GetInt("top_k", 0),
			FinalK:     request.GetInt("final_k", 0),
			Budget:     request.GetInt("budget", 0),
			Filter:     filter,
		})
		if err != nil {
			var rerr *retriever.Error
			if errors.As(err, &rerr) {
				logger.Error("mcp retrieve failed",
					"kind", string(rerr.Kind),
					"stage", string(rerr.Stage),
					"error", rerr.Err,
				)
				return mcp.NewToolResultError(fmt.Sprintf("%s (%s): %s", rerr.Kind, rerr.Stage, publicMessage(rerr))), nil
			}
			return nil, err
		}

		payload, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("failed to encode result: %w", err)
		}
		return mcp.NewToolResultText(string(payload)), nil
	}
}

// filterArg decodes the optional filter argument into string pairs.
func filterArg(request mcp.CallToolRequest) (map[string]string, error) {
	raw, ok := request.GetArguments()["filter"]
	if !ok || raw == nil {
		return nil, nil
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("filter must be an object of string values")
	}
	filter := make(map[string]string, len(obj))
	for k, v := range obj {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("filter value for %q must be a string", k)
		}
		filter[k] = s
	}
	return filter, nil
}

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/velomcp/pkg/core"
)

// InputParser parses request arguments into a strongly typed struct
func InputParser[T any](req mcp.CallToolRequest) (T, *mcp.CallToolResult, error) {
	var input T

	inputJSON, err := json.Marshal(req.Params.Arguments)
	if err != nil {
		return input, core.NewValidationError(core.ErrInvalidInput, fmt.Sprintf("Invalid input format: %v", err)).ToMCPResult(), err
	}

	if err := json.Unmarshal(inputJSON, &input); err != nil {
		return input, core.NewValidationError(core.ErrInvalidInput, fmt.Sprintf("Failed to parse input: %v", err)).ToMCPResult(), err
	}

	return input, nil, nil
}

// WithParsedInput handles request parsing, error mapping and result
// encoding around a handler. A handler may return a ready-made
// *mcp.CallToolResult instead of a value to encode.
func WithParsedInput[T any](
	toolName string,
	base *slog.Logger,
	sets func() []string,
	handler func(ctx context.Context, input T, logger *slog.Logger) (any, error),
) func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		logger := core.LoggerFrom(ctx, base).With("tool", toolName)

		input, errResult, err := InputParser[T](req)
		if err != nil {
			logger.Warn("failed to parse input", "error", err)
			return errResult, nil
		}

		result, err := handler(ctx, input, logger)
		if err != nil {
			var known []string
			if sets != nil {
				known = sets()
			}
			te := toolError(err, known)
			logger.Warn("tool failed", "error", err, "code", te.Code)
			return te.ToMCPResult(), nil
		}

		if res, ok := result.(*mcp.CallToolResult); ok {
			return res, nil
		}

		resultBytes, err := json.Marshal(result)
		if err != nil {
			logger.Error("failed to marshal result", "error", err)
			return core.NewError(core.ErrInternalError, "Failed to generate result").ToMCPResult(), nil
		}

		return mcp.NewToolResultText(string(resultBytes)), nil
	}
}

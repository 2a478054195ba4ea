package tools

import (
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/velomcp/pkg/core"
)

// IsErrorResult checks if a CallToolResult represents an error
func IsErrorResult(result *mcp.CallToolResult) bool {
	return result != nil && result.IsError
}

// AssertErrorCode checks that a result is an error carrying code
func AssertErrorCode(t *testing.T, result *mcp.CallToolResult, code core.ErrorCode) {
	t.Helper()
	if !IsErrorResult(result) {
		t.Fatalf("expected %s error, got success: %s", code, ResultText(result))
	}
	var te core.ToolError
	if err := json.Unmarshal([]byte(ResultText(result)), &te); err != nil {
		t.Fatalf("error result is not a tool error: %v", err)
	}
	if te.Code != string(code) {
		t.Errorf("error code = %s, want %s (%s)", te.Code, code, te.Message)
	}
}

// AssertSuccessResult checks that a result is a success result and fails the test if not
func AssertSuccessResult(t *testing.T, result *mcp.CallToolResult, message string) {
	t.Helper()
	if result == nil {
		t.Fatalf("%s. Got nil result", message)
	}
	if IsErrorResult(result) {
		t.Fatalf("%s. Got error: %s", message, ResultText(result))
	}
}

// ResultText returns the first text content of a result
func ResultText(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	for _, c := range result.Content {
		if text, ok := c.(mcp.TextContent); ok {
			return text.Text
		}
	}
	return ""
}

// ParseResultJSON parses the JSON content from a CallToolResult
func ParseResultJSON(result *mcp.CallToolResult, out any) error {
	return json.Unmarshal([]byte(ResultText(result)), out)
}

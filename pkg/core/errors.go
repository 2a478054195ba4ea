// Package core provides shared utilities for the velomcp tools.
package core

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// ErrorCode defines standard error codes for MCP tools
type ErrorCode string

// Standard error codes
const (
	// Input validation errors
	ErrInvalidInput     ErrorCode = "INVALID_INPUT"
	ErrInvalidLatitude  ErrorCode = "INVALID_LATITUDE"
	ErrInvalidLongitude ErrorCode = "INVALID_LONGITUDE"
	ErrMissingParameter ErrorCode = "MISSING_PARAMETER"
	ErrInvalidParameter ErrorCode = "INVALID_PARAMETER"
	ErrUnknownProfile   ErrorCode = "UNKNOWN_PROFILE"

	// Service errors
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrServiceTimeout     ErrorCode = "SERVICE_TIMEOUT"

	// Data errors
	ErrNoResults     ErrorCode = "NO_RESULTS"
	ErrInternalError ErrorCode = "INTERNAL_ERROR"
)

// ToolError is the structured error returned to MCP clients
type ToolError struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions,omitempty"`
	Guidance    string   `json:"guidance,omitempty"`
}

// Error implements the error interface
func (e ToolError) Error() string {
	if e.Guidance != "" {
		return fmt.Sprintf("%s: %s. %s", e.Code, e.Message, e.Guidance)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError creates a new ToolError with the given code and message
func NewError(code ErrorCode, message string) *ToolError {
	return &ToolError{
		Code:    string(code),
		Message: message,
	}
}

// WithGuidance adds guidance information to the error
func (e *ToolError) WithGuidance(guidance string) *ToolError {
	e.Guidance = guidance
	return e
}

// WithSuggestions adds suggestions to the error
func (e *ToolError) WithSuggestions(suggestions ...string) *ToolError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// ToMCPResult converts the error to an MCP tool result
func (e *ToolError) ToMCPResult() *mcp.CallToolResult {
	errorJSON, err := json.Marshal(e)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("ERROR: %s - %s", e.Code, e.Message))
	}

	return mcp.NewToolResultError(string(errorJSON))
}

// NewValidationError creates an error for client input failures
func NewValidationError(code ErrorCode, message string) *ToolError {
	return NewError(code, message).
		WithGuidance("Please correct the parameters and try again")
}

// NoItineraryError hides upstream detail behind the user-facing message
func NoItineraryError() *ToolError {
	return NewError(ErrNoResults, "No itinerary found").
		WithGuidance("Try points closer to a road network or a different profile")
}

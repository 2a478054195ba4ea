package tracing

import "go.opentelemetry.io/otel/attribute"

// Attribute keys
const (
	// MCP tool attributes
	AttrMCPToolName     = "mcp.tool.name"
	AttrMCPToolStatus   = "mcp.tool.status"
	AttrMCPToolDuration = "mcp.tool.duration_ms"
	AttrMCPResultSize   = "mcp.tool.result_size"

	// Routing engine attributes
	AttrEngineOperation = "brouter.operation"
	AttrEngineURL       = "brouter.url"
	AttrEngineStatus    = "brouter.status"
	AttrFetchState      = "brouter.fetch.state"

	// Profile attributes
	AttrProfileName     = "velo.profile.name"
	AttrProfileIdentity = "velo.profile.identity"
	AttrAlternative     = "velo.alternative"

	// Planning attributes
	AttrPlanID        = "velo.plan.id"
	AttrCandidates    = "velo.plan.candidates"
	AttrSelected      = "velo.plan.selected"
	AttrFailurePolicy = "velo.plan.failure_policy"

	// Rate limiting attributes
	AttrRateLimitWaitMs = "velo.ratelimit.wait_ms"

	// HTTP attributes
	AttrHTTPMethod     = "http.method"
	AttrHTTPPath       = "http.path"
	AttrHTTPStatusCode = "http.status_code"
	AttrHTTPSessionID  = "mcp.session.id"
)

// Status values
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Engine operations
const (
	OperationRoute  = "route"
	OperationUpload = "upload_profile"
	OperationPing   = "ping"
)

// Cache types
const (
	CacheTypeRoute   = "route"
	CacheTypeProfile = "profile"
)

// MCPToolAttributes returns attributes for MCP tool execution
func MCPToolAttributes(toolName string, status string, durationMs int64, resultSize int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrMCPToolName, toolName),
		attribute.String(AttrMCPToolStatus, status),
		attribute.Int64(AttrMCPToolDuration, durationMs),
		attribute.Int(AttrMCPResultSize, resultSize),
	}
}

// EngineAttributes returns attributes for a routing engine call
func EngineAttributes(operation, url string, status int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrEngineOperation, operation),
		attribute.String(AttrEngineURL, url),
		attribute.Int(AttrEngineStatus, status),
	}
}

// RouteAttributes identifies one (profile, alternative) fetch
func RouteAttributes(profile, identity string, alternative int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrProfileName, profile),
		attribute.String(AttrProfileIdentity, identity),
		attribute.Int(AttrAlternative, alternative),
	}
}

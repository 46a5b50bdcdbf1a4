package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// ============================================
// Standard Tracing Fields (Context level)
// These fields are propagated through the call chain
// ============================================

const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldJobID is the workflow job ID
	FieldJobID = "job_id"

	// FieldStage is the workflow stage name
	FieldStage = "stage"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldSource is the identity-source tag
	FieldSource = "source"

	// FieldUserID is the owning user ID
	FieldUserID = "user_id"
)

// ============================================
// Standard Metric Fields (Entry level)
// These fields are used for aggregation and alerting
// ============================================

const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldProgress is the job progress percentage
	FieldProgress = "progress"

	// FieldStatus is the operation status
	FieldStatus = "status"

	// FieldSize is a payload size in bytes
	FieldSize = "size"
)

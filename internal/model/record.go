package model

// Record type tags recognized by the classifier.
const (
	TypeAPIRequest      = "api_request"
	TypeAPIRequestError = "api_request_error"
	TypeDatabase        = "database"
	TypeSecurity        = "security"
)

// Defaults applied when a record omits a field.
const (
	DefaultPath      = "unknown"
	DefaultOperation = "unknown"
	DefaultModel     = "unknown"
)

// LogRecord is one decoded structured log entry.
// Every decoded field is optional; the accessor methods apply the defaults
// so callers never branch on nil themselves.
type LogRecord struct {
	LineNo  int
	RawLine string
	Source  string

	LevelField      *string
	TypeField       *string
	MessageField    *string
	PathField       *string
	DurationField   *float64
	StatusCodeField *int
	OperationField  *string
	ModelField      *string
	SuccessField    *bool
	UserIDField     *string
	TimestampField  *string

	// Severity is the normalized severity of the level value (TRACE..FATAL),
	// or empty when the record carries no usable level.
	Severity string
}

func (r *LogRecord) Level() string      { return stringOr(r.LevelField, "") }
func (r *LogRecord) Type() string       { return stringOr(r.TypeField, "") }
func (r *LogRecord) Message() string    { return stringOr(r.MessageField, "") }
func (r *LogRecord) Path() string       { return stringOr(r.PathField, DefaultPath) }
func (r *LogRecord) Operation() string  { return stringOr(r.OperationField, DefaultOperation) }
func (r *LogRecord) Model() string      { return stringOr(r.ModelField, DefaultModel) }
func (r *LogRecord) UserID() string     { return stringOr(r.UserIDField, "") }
func (r *LogRecord) Timestamp() string  { return stringOr(r.TimestampField, "") }
func (r *LogRecord) HasTimestamp() bool { return r.TimestampField != nil }

// DurationMS returns the request/operation latency in milliseconds (default 0).
func (r *LogRecord) DurationMS() float64 {
	if r.DurationField == nil {
		return 0
	}
	return *r.DurationField
}

// StatusCode returns the HTTP status code (default 0).
func (r *LogRecord) StatusCode() int {
	if r.StatusCodeField == nil {
		return 0
	}
	return *r.StatusCodeField
}

// Success reports whether the operation succeeded (default true).
func (r *LogRecord) Success() bool {
	if r.SuccessField == nil {
		return true
	}
	return *r.SuccessField
}

func stringOr(v *string, def string) string {
	if v == nil {
		return def
	}
	return *v
}

package log

import "sort"

const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldQuery      = "query"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldUserAgent  = "user_agent"
	FieldSuccess    = "success"
	FieldError      = "error"
	FieldOperation  = "operation"
	FieldEntryID    = "entry_id"
	FieldAmount     = "amount"
	FieldCategory   = "category"
	FieldDeletions  = "deletions"
	FieldEdits      = "edits"
	FieldMessageID  = "message_id"
)

const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentEntries   = "entries"
	ComponentTable     = "table"
	ComponentCharts    = "charts"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentCache     = "cache"
	ComponentSecurity  = "security"
	ComponentRateLimit = "rate_limit"
	ComponentImport    = "import"
)

const (
	OpCreate   = "create"
	OpDelete   = "delete"
	OpUpdate   = "update"
	OpList     = "list"
	OpSave     = "save"
	OpUndo     = "undo"
	OpRedo     = "redo"
	OpRender   = "render"
	OpConsume  = "consume"
	OpStartup  = "startup"
	OpShutdown = "shutdown"
)

// LogFields collects structured fields before handing them to slog.
type LogFields map[string]any

// NewFields creates an empty field set
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds the component name
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithRequestID adds the request id
func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

// WithClientIP adds the client IP
func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

// WithError adds the error message if err is not nil
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds the operation name
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithEntry adds the identifying fields of one entry.
func (f LogFields) WithEntry(id int64, amount float64, category string) LogFields {
	if id != 0 {
		f[FieldEntryID] = id
	}
	f[FieldAmount] = amount
	f[FieldCategory] = category
	return f
}

// WithChangeSet adds the size of a change set.
func (f LogFields) WithChangeSet(edits, deletions int) LogFields {
	f[FieldEdits] = edits
	f[FieldDeletions] = deletions
	return f
}

// WithHTTPRequest adds request method, path, query and user agent
func (f LogFields) WithHTTPRequest(method, path, query, userAgent string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	if query != "" {
		f[FieldQuery] = query
	}
	if userAgent != "" {
		f[FieldUserAgent] = userAgent
	}
	return f
}

// WithPath adds the request path
func (f LogFields) WithPath(path string) LogFields {
	f[FieldPath] = path
	return f
}

// With sets any other key.
func (f LogFields) With(key string, value any) LogFields {
	f[key] = value
	return f
}

// WithHTTPResponse adds status code and duration
func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = statusCode < 400
	return f
}

// ToSlice flattens the fields into slog key/value pairs, sorted by key so
// log lines are stable.
func (f LogFields) ToSlice() []any {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]any, 0, len(f)*2)
	for _, k := range keys {
		out = append(out, k, f[k])
	}
	return out
}

package observe

import "errors"

// Configuration errors.
var (
	ErrMissingServiceName     = errors.New("observe: service name is required")
	ErrInvalidSamplePct       = errors.New("observe: sample percentage must be between 0.0 and 1.0")
	ErrInvalidTracingExporter = errors.New("observe: invalid tracing exporter")
	ErrInvalidMetricsExporter = errors.New("observe: invalid metrics exporter")
	ErrInvalidLogLevel        = errors.New("observe: invalid log level")
	ErrInvalidLogFormat       = errors.New("observe: invalid log format")
)

// ErrMissingService indicates CallMeta.Service is empty.
var ErrMissingService = errors.New("observe: service is required")

// RedactedFields lists field keys whose values never reach log output.
// Provider keys, CMS credentials and cache DSNs travel under these names.
var RedactedFields = []string{
	"password",
	"secret",
	"token",
	"api_key",
	"apiKey",
	"authorization",
	"credential",
	"dsn",
}

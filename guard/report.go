package guard

import (
	"fmt"

	"github.com/dlwpdl/eunsense-automation-sub000/resilience"
)

// Report is the operator-facing summary of a failed call.
type Report struct {
	Service  string
	Kind     string
	Attempts int
	Message  string
}

// NewReport summarizes err for service. A nil err yields the zero Report.
func NewReport(service string, err error) Report {
	if err == nil {
		return Report{}
	}
	r := Report{
		Service: service,
		Kind:    resilience.ClassifyError(err).String(),
		Message: err.Error(),
	}
	if re, ok := resilience.AsError(err); ok {
		r.Attempts = re.Attempts
		r.Message = re.Message()
	}
	return r
}

// String renders the report on one line.
func (r Report) String() string {
	return fmt.Sprintf("%s call failed: kind=%s attempts=%d: %s", r.Service, r.Kind, r.Attempts, r.Message)
}

// Package health aggregates the health checks of a service and its stores into one
// JSON report.
package health

import (
	"context"
	"net/http"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Check struct {
	Name  string
	Check func(context.Context, bool) (int, string, error)
}

type report struct {
	Status       int          `json:"status"`
	Dependencies []dependency `json:"dependencies"`
}

type dependency struct {
	Resource string `json:"resource"`
	Status   int    `json:"status"`
	Error    string `json:"error,omitempty"`
	Message  string `json:"message,omitempty"`
	// Nested holds the report of a dependency that is itself an aggregate.
	Nested jsoniter.RawMessage `json:"dependencies,omitempty"`
}

// CheckAll runs every check and reports http.StatusServiceUnavailable when any of them
// fails. The error return is reserved for failing to build the report.
func CheckAll(ctx context.Context, checkLiveness bool, checks []Check) (int, string, error) {
	r := report{
		Status:       http.StatusOK,
		Dependencies: make([]dependency, 0, len(checks)),
	}

	for _, check := range checks {
		status, message, err := check.Check(ctx, checkLiveness)

		d := dependency{Resource: check.Name, Status: status}

		if err != nil {
			d.Error = err.Error()
		}

		if err != nil || status != http.StatusOK {
			r.Status = http.StatusServiceUnavailable
		}

		if len(message) > 0 && message[0] == '{' && json.Valid([]byte(message)) {
			d.Nested = jsoniter.RawMessage(message)
		} else {
			d.Message = message
		}

		r.Dependencies = append(r.Dependencies, d)
	}

	b, err := json.Marshal(r)
	if err != nil {
		return http.StatusInternalServerError, "", err
	}

	return r.Status, string(b), nil
}

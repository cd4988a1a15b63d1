package migrate

import "fmt"

// State is the phase a migration run is in. Per-user and per-batch errors
// never leave the per-user loop; only the top-level phases are terminal.
type State string

// Migration run states.
const (
	StateNotStarted      State = "not_started"
	StateSchemaChecked   State = "schema_checked"
	StateUsersEnumerated State = "users_enumerated"
	StateFitting         State = "fitting"
	StateEncoding        State = "encoding"
	StateUpserting       State = "upserting"
	StateSummarized      State = "summarized"
)

// Report summarizes one migration run: a log artifact, not a contract.
type Report struct {
	UsersProcessed int
	PointsUpdated  int
	Errors         []string
}

// AddError records a non-fatal error string.
func (r *Report) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// String renders the report as plain structured text.
func (r *Report) String() string {
	s := fmt.Sprintf("migration: %d users processed, %d points updated, %d errors",
		r.UsersProcessed, r.PointsUpdated, len(r.Errors))
	for _, e := range r.Errors {
		s += "\n  - " + e
	}
	return s
}

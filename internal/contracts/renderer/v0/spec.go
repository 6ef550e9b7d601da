// Package v0 is the wire contract of the remote render endpoint. A remote
// renderer runs one tool invocation per request against its own copy of the
// shared work directory and answers with the exit code and captured output.
package v0

// InvokeRequest asks the renderer to run the media tool once.
// Args never include the binary.
type InvokeRequest struct {
	Stage      string   `json:"stage"`
	Args       []string `json:"args"`
	TimeoutSec int      `json:"timeout_sec"`
}

// InvokeResponse reports a finished run. Error is set when the tool could
// not be started or timed out; ExitCode is meaningless in that case.
type InvokeResponse struct {
	ExitCode int    `json:"exit_code"`
	Output   string `json:"output"`
	Error    string `json:"error,omitempty"`
}

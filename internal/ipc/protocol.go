// Package ipc implements the newline-delimited JSON control protocol hark
// speaks over its runtime unix socket.
package ipc

// Request is one control command from a client process.
type Request struct {
	Command string `json:"command"`
}

// Response reports command outcome plus a session status snapshot.
type Response struct {
	OK        bool   `json:"ok"`
	State     string `json:"state,omitempty"`
	Listening bool   `json:"listening,omitempty"`
	Capturing bool   `json:"capturing,omitempty"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}

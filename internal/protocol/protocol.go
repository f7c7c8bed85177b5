// Package protocol defines the JSON frame types exchanged over the
// interactive run channel between the server and a connected client.
package protocol

// Frame type tags. Client-to-server frames carry stdin, resize, and stop;
// server-to-client frames carry status, stdout, and exit.
const (
	FrameStdin  = "stdin"
	FrameResize = "resize"
	FrameStop   = "stop"

	FrameStatus = "status"
	FrameStdout = "stdout"
	FrameExit   = "exit"
)

// Frame is one discrete message on the channel, tagged by Type.
// Unused fields are omitted on the wire.
type Frame struct {
	Type string `json:"type"`

	// stdin / stdout payload
	Data string `json:"data,omitempty"`

	// resize dimensions
	Cols int `json:"cols,omitempty"`
	Rows int `json:"rows,omitempty"`

	// exit code; pointer so code 0 still serializes
	Code *int `json:"code,omitempty"`

	// status text
	Message string `json:"message,omitempty"`
}

// Stdout builds a stdout frame.
func Stdout(data string) Frame {
	return Frame{Type: FrameStdout, Data: data}
}

// Status builds an informational status frame.
func Status(message string) Frame {
	return Frame{Type: FrameStatus, Message: message}
}

// Exit builds the terminal exit frame. It is always the last frame a
// server sends on a channel.
func Exit(code int) Frame {
	return Frame{Type: FrameExit, Code: &code}
}

// Synthetic exit codes for runs that did not end on their own.
const (
	// ExitStopped is reported when the client sent a stop frame.
	ExitStopped = 130
	// ExitDeadline is reported when the session deadline killed the process.
	ExitDeadline = 124
	// ExitSpawnFailed is reported when the process never started.
	ExitSpawnFailed = 1
)

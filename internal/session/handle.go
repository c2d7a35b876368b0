package session

import (
	"context"
	"fmt"

	"github.com/harkvoice/hark/internal/ipc"
)

// Handle serves IPC commands against the running loop.
func (l *Loop) Handle(_ context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case "status":
		return ipc.Response{
			OK:        true,
			State:     string(l.State()),
			Listening: l.IsListening(),
			Capturing: l.IsCapturing(),
			Message:   "status",
		}
	case "stop":
		l.Stop()
		return ipc.Response{
			OK:      true,
			State:   string(l.State()),
			Message: "stop requested",
		}
	default:
		return ipc.Response{
			OK:    false,
			State: string(l.State()),
			Error: fmt.Sprintf("unknown command: %s", req.Command),
		}
	}
}

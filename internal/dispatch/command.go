package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

// CommandConsumer pipes each recognized command to a configured program's
// stdin. The program decides what the words mean; hark only delivers them.
type CommandConsumer struct {
	argv    []string
	timeout time.Duration
}

// NewCommandConsumer builds a consumer around argv. timeout bounds each
// invocation.
func NewCommandConsumer(argv []string, timeout time.Duration) *CommandConsumer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CommandConsumer{argv: argv, timeout: timeout}
}

func (c *CommandConsumer) Consume(ctx context.Context, text string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return runCommandWithInput(ctx, c.argv, text)
}

// LogConsumer records recognized commands without acting on them. Used when
// no dispatch command is configured.
type LogConsumer struct {
	Logger *slog.Logger
}

func (c LogConsumer) Consume(_ context.Context, text string) error {
	if c.Logger != nil {
		c.Logger.Info("recognized command", "text", text)
	}
	return nil
}

// runCommandWithInput executes argv and writes input to stdin.
func runCommandWithInput(ctx context.Context, argv []string, input string) error {
	if len(argv) == 0 {
		return fmt.Errorf("command argv cannot be empty")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open stdin for %s: %w", argv[0], err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("start command %s: %w", argv[0], err)
	}

	if input != "" {
		if _, err := stdin.Write([]byte(input)); err != nil {
			_ = stdin.Close()
			_ = cmd.Wait()
			return fmt.Errorf("write stdin for %s: %w", argv[0], err)
		}
	}
	_ = stdin.Close()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait for %s: %w", argv[0], err)
	}
	return nil
}

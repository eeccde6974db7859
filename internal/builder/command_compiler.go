package builder

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"slices"

	"git.home.luguber.info/inful/ondemand/internal/logfields"
)

// CommandCompiler invokes the external build tool as a subprocess, passing
// one name=request argument per claimed entry. Stdout and stderr are captured
// and attached to the error on failure.
type CommandCompiler struct {
	log     *slog.Logger
	command string
	args    []string
	dir     string
}

func NewCommandCompiler(log *slog.Logger, command string, args []string, dir string) *CommandCompiler {
	return &CommandCompiler{log: log, command: command, args: args, dir: dir}
}

func (c *CommandCompiler) Compile(ctx context.Context, targets []EntryTarget) error {
	args := slices.Clone(c.args)
	for _, t := range targets {
		args = append(args, fmt.Sprintf("%s=%s", t.TargetName, t.Request))
	}

	cmd := exec.CommandContext(ctx, c.command, args...)
	cmd.Dir = c.dir

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	c.log.Debug("running build command", slog.String("command", c.command), slog.Int("targets", len(targets)))

	if err := cmd.Run(); err != nil {
		out := bytes.TrimSpace(output.Bytes())
		c.log.Error("build command failed", logfields.Error(err), slog.String("output", string(out)))
		if len(out) > 0 {
			return fmt.Errorf("%s: %w: %s", c.command, err, out)
		}
		return fmt.Errorf("%s: %w", c.command, err)
	}
	return nil
}

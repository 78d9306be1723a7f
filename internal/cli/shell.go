// Package cli implements the interactive shell. It reads one task per line,
// hands it to the orchestrator and renders the result, with a few built-in
// commands for help and execution history.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/sosadtsia/infrabot/internal/journal"
	"github.com/sosadtsia/infrabot/internal/orchestrator"
)

// TaskRunner executes one natural-language task. Implemented by
// orchestrator.Orchestrator.
type TaskRunner interface {
	Run(ctx context.Context, description string) orchestrator.Result
}

// History lists past executions. Implemented by journal.Journal.
type History interface {
	Recent(limit int) ([]journal.Entry, error)
}

// Shell is the line-oriented interactive frontend.
type Shell struct {
	runner  TaskRunner
	history History
	in      io.Reader
	out     io.Writer
	logger  *zap.Logger
}

func New(runner TaskRunner, history History, in io.Reader, out io.Writer, logger *zap.Logger) *Shell {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Shell{runner: runner, history: history, in: in, out: out, logger: logger}
}

// Run reads tasks until EOF, an exit command, or context cancellation.
func (s *Shell) Run(ctx context.Context) error {
	fmt.Fprintln(s.out, "Type a task in plain English, 'help' for commands, 'exit' to quit.")

	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		fmt.Fprint(s.out, "\ninfrabot> ")
		if !scanner.Scan() {
			fmt.Fprintln(s.out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch strings.ToLower(line) {
		case "exit", "quit", "q":
			fmt.Fprintln(s.out, "Goodbye.")
			return nil
		case "help":
			s.printHelp()
		case "history":
			s.printHistory()
		case "clear":
			fmt.Fprint(s.out, "\033[2J\033[H")
		default:
			s.runTask(ctx, line)
		}
	}
}

func (s *Shell) runTask(ctx context.Context, task string) {
	fmt.Fprintf(s.out, "Working on: %s\n", task)

	result := s.runner.Run(ctx, task)
	s.render(result)
}

func (s *Shell) render(result orchestrator.Result) {
	if result.Success {
		fmt.Fprintln(s.out, "✓ Task completed")
	} else {
		fmt.Fprintln(s.out, "✗ Task failed")
		if result.Error != "" {
			fmt.Fprintf(s.out, "  %s\n", result.Error)
		}
	}
	if out := strings.TrimSpace(result.Output); out != "" {
		fmt.Fprintln(s.out, out)
	}
}

func (s *Shell) printHelp() {
	fmt.Fprint(s.out, `Commands:
  help     show this message
  history  show recent executions
  clear    clear the screen
  exit     leave the shell

Anything else is treated as an infrastructure task, for example:
  show disk usage
  install nginx on the web servers
  restart the postgresql service
`)
}

func (s *Shell) printHistory() {
	if s.history == nil {
		fmt.Fprintln(s.out, "history is not available")
		return
	}
	entries, err := s.history.Recent(10)
	if err != nil {
		s.logger.Warn("failed to read history", zap.Error(err))
		fmt.Fprintln(s.out, "history is not available")
		return
	}
	if len(entries) == 0 {
		fmt.Fprintln(s.out, "no executions yet")
		return
	}
	for _, e := range entries {
		mark := "✗"
		if e.Success {
			mark = "✓"
		}
		fmt.Fprintf(s.out, "%s %s  %s (%s)\n",
			mark, e.CreatedAt.Format("2006-01-02 15:04"), e.Task, e.Approach)
	}
}

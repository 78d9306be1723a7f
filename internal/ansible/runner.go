// Package ansible wraps the ansible and ansible-playbook binaries. It is a
// thin collaborator: it shells out, enforces timeouts, and reports exit
// status; it makes no decisions about what to run.
package ansible

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Result is the outcome of one executor invocation.
type Result struct {
	Success    bool
	Stdout     string
	Stderr     string
	ReturnCode int
	Err        string
	Command    string
}

const defaultInventory = `[local]
localhost ansible_connection=local

[all:vars]
ansible_python_interpreter=/usr/bin/python3
`

// Runner executes playbooks and ad-hoc commands with bounded durations.
type Runner struct {
	inventoryPath string
	tmpInventory  string
	adHocTimeout  time.Duration
	playbookTO    time.Duration
	logger        *zap.Logger
}

// NewRunner builds a Runner. When inventoryPath is empty a temporary
// localhost inventory is written and removed again on Close.
func NewRunner(inventoryPath string, adHocTimeout, playbookTimeout time.Duration, logger *zap.Logger) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if adHocTimeout <= 0 {
		adHocTimeout = 60 * time.Second
	}
	if playbookTimeout <= 0 {
		playbookTimeout = 300 * time.Second
	}

	r := &Runner{
		inventoryPath: inventoryPath,
		adHocTimeout:  adHocTimeout,
		playbookTO:    playbookTimeout,
		logger:        logger,
	}

	if inventoryPath == "" {
		f, err := os.CreateTemp("", "infrabot-inventory-*.ini")
		if err != nil {
			return nil, fmt.Errorf("creating default inventory: %w", err)
		}
		if _, err := f.WriteString(defaultInventory); err != nil {
			f.Close()
			os.Remove(f.Name())
			return nil, fmt.Errorf("writing default inventory: %w", err)
		}
		if err := f.Close(); err != nil {
			os.Remove(f.Name())
			return nil, fmt.Errorf("closing default inventory: %w", err)
		}
		r.tmpInventory = f.Name()
	}

	return r, nil
}

// Close removes the temporary inventory, if one was created.
func (r *Runner) Close() error {
	if r.tmpInventory != "" {
		return os.Remove(r.tmpInventory)
	}
	return nil
}

func (r *Runner) inventory() string {
	if r.inventoryPath != "" {
		return r.inventoryPath
	}
	return r.tmpInventory
}

// RunAdHoc executes a single module invocation against a host pattern.
func (r *Runner) RunAdHoc(ctx context.Context, hosts, module, args string) Result {
	cmd := []string{"ansible", hosts, "-i", r.inventory(), "-m", module}
	if args != "" {
		cmd = append(cmd, "-a", args)
	}
	return r.execute(ctx, cmd, r.adHocTimeout)
}

// RunPlaybook writes the playbook text to a temporary file, executes it, and
// always removes the file again, on every exit path.
func (r *Runner) RunPlaybook(ctx context.Context, playbook string) Result {
	if err := ValidatePlaybook(playbook); err != nil {
		return Result{Success: false, Err: err.Error()}
	}

	f, err := os.CreateTemp("", "infrabot-playbook-*.yml")
	if err != nil {
		return Result{Success: false, Err: fmt.Sprintf("creating playbook file: %v", err)}
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.WriteString(playbook); err != nil {
		f.Close()
		return Result{Success: false, Err: fmt.Sprintf("writing playbook file: %v", err)}
	}
	if err := f.Close(); err != nil {
		return Result{Success: false, Err: fmt.Sprintf("closing playbook file: %v", err)}
	}

	cmd := []string{"ansible-playbook", path, "-i", r.inventory()}
	return r.execute(ctx, cmd, r.playbookTO)
}

// Ping tests connectivity to a host pattern with the ping module.
func (r *Runner) Ping(ctx context.Context, hosts string) Result {
	if hosts == "" {
		hosts = "all"
	}
	return r.RunAdHoc(ctx, hosts, "ping", "")
}

// execute runs one command with a deadline. A timeout yields a failure
// Result rather than an error or a hang.
func (r *Runner) execute(ctx context.Context, argv []string, timeout time.Duration) Result {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug("executing", zap.Strings("argv", argv))
	err := cmd.Run()

	result := Result{
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
		Command: strings.Join(argv, " "),
	}

	switch {
	case err == nil:
		result.Success = true
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		result.Err = fmt.Sprintf("execution timed out after %s", timeout)
		result.ReturnCode = -1
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ReturnCode = exitErr.ExitCode()
		} else {
			result.Err = err.Error()
			result.ReturnCode = -1
		}
	}

	return result
}

// ValidatePlaybook checks that the document parses as YAML and has the basic
// playbook shape: a list of plays, each with a hosts field.
func ValidatePlaybook(content string) error {
	var plays []map[string]any
	if err := yaml.Unmarshal([]byte(content), &plays); err != nil {
		return fmt.Errorf("playbook is not valid YAML: %w", err)
	}
	if len(plays) == 0 {
		return fmt.Errorf("playbook must be a non-empty list of plays")
	}
	for i, play := range plays {
		if _, ok := play["hosts"]; !ok {
			return fmt.Errorf("play %d is missing a hosts field", i+1)
		}
	}
	return nil
}

// Package orchestrator sequences one task through the system: fast-path
// check, context retrieval, the reasoning pipeline, artifact extraction,
// execution dispatch and memory write-back. It is the single boundary that
// converts internal failures into structured results; no error or panic
// escapes Run.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sosadtsia/infrabot/internal/ansible"
	"github.com/sosadtsia/infrabot/internal/extract"
	"github.com/sosadtsia/infrabot/internal/governance"
	"github.com/sosadtsia/infrabot/internal/memory"
	"github.com/sosadtsia/infrabot/internal/pipeline"
)

// Task is one natural-language infrastructure request. Immutable after
// intake.
type Task struct {
	Description string
	Timestamp   time.Time
}

// Result is what Run returns to the caller. In-task failures surface here as
// Success=false with Error set, never as a returned error.
type Result struct {
	Task      string
	Success   bool
	FastPath  bool
	Output    string
	RawOutput string
	Playbook  string
	Approach  string
	Status    string
	Error     string
}

// TaskExecutor dispatches automation. Implemented by ansible.Runner.
type TaskExecutor interface {
	RunAdHoc(ctx context.Context, hosts, module, args string) ansible.Result
	RunPlaybook(ctx context.Context, playbook string) ansible.Result
}

// ContextStore is the semantic memory the orchestrator reads and writes.
type ContextStore interface {
	RecordInteraction(ctx context.Context, kind, content string, metadata map[string]string) (string, error)
	RecordExecution(ctx context.Context, task, playbook string, outcome memory.ExecutionOutcome) (string, error)
	QuerySimilar(ctx context.Context, text string, limit int) []memory.Record
	SuccessfulPlaybooks(ctx context.Context, text string, limit int) []memory.Record
}

// Reasoner runs the three-stage reasoning pipeline.
type Reasoner interface {
	Run(ctx context.Context, task string, past []pipeline.PastSolution) (string, error)
}

// Policy screens generated automation before dispatch.
type Policy interface {
	Evaluate(ctx context.Context, req governance.Request) (governance.Result, error)
}

// ExecutionJournal records dispatches for the history command.
type ExecutionJournal interface {
	Add(task, approach string, success bool, returnCode int, duration time.Duration) error
}

// Deps carries the orchestrator's collaborators. Router and Logger may be
// nil; Journal and Policy are optional.
type Deps struct {
	Router   *Router
	Store    ContextStore
	Reasoner Reasoner
	Executor TaskExecutor
	Policy   Policy
	Journal  ExecutionJournal
	Logger   *zap.Logger
}

// Orchestrator runs a single task at a time.
type Orchestrator struct {
	router   *Router
	store    ContextStore
	reasoner Reasoner
	executor TaskExecutor
	policy   Policy
	journal  ExecutionJournal
	logger   *zap.Logger

	mu sync.Mutex
}

func New(deps Deps) *Orchestrator {
	if deps.Router == nil {
		deps.Router = NewRouter()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Orchestrator{
		router:   deps.Router,
		store:    deps.Store,
		reasoner: deps.Reasoner,
		executor: deps.Executor,
		policy:   deps.Policy,
		journal:  deps.Journal,
		logger:   deps.Logger,
	}
}

// Run executes one task end to end. The mutex keeps a single task in flight
// per orchestrator instance.
func (o *Orchestrator) Run(ctx context.Context, description string) (result Result) {
	o.mu.Lock()
	defer o.mu.Unlock()

	task := Task{Description: description, Timestamp: time.Now()}

	defer func() {
		if r := recover(); r != nil {
			result = o.fail(ctx, task, fmt.Errorf("panic: %v", r))
		}
	}()

	o.logger.Info("task received", zap.String("task", task.Description))

	if cmd, ok := o.router.Match(task.Description); ok {
		return o.runFastPath(ctx, task, cmd)
	}

	// The request is recorded before reasoning starts so a pipeline
	// failure still leaves it in memory.
	if _, err := o.store.RecordInteraction(ctx, memory.KindUserRequest, task.Description, nil); err != nil {
		o.logger.Warn("failed to record user request", zap.Error(err))
	}

	similar := o.store.QuerySimilar(ctx, task.Description, 3)
	if len(similar) > 0 {
		o.logger.Debug("found similar past tasks", zap.Int("count", len(similar)))
	}
	past := o.pastSolutions(ctx, task.Description)

	review, err := o.reasoner.Run(ctx, task.Description, past)
	if err != nil {
		return o.fail(ctx, task, fmt.Errorf("reasoning pipeline: %w", err))
	}

	artifact := extract.Parse(review)

	result = Result{
		Task:      task.Description,
		RawOutput: review,
		Approach:  string(artifact.Approach),
		Status:    string(artifact.Status),
	}

	if !artifact.HasContent() {
		// No usable artifact: degrade to surfacing the raw reviewer
		// text as an informational answer.
		result.Success = true
		result.Output = review
		o.recordOutcome(ctx, task, result)
		return result
	}
	result.Playbook = artifact.Content

	if o.policy != nil {
		verdict, perr := o.policy.Evaluate(ctx, governance.Request{
			Task:     task.Description,
			Approach: string(artifact.Approach),
			Content:  artifact.Content,
		})
		if perr == nil && verdict.Effect == governance.EffectDeny {
			result.Error = "blocked by policy: " + verdict.Reason
			o.logger.Warn("execution blocked", zap.String("reason", verdict.Reason))
			o.recordOutcome(ctx, task, result)
			return result
		}
	}

	start := time.Now()
	execRes := o.executor.RunPlaybook(ctx, artifact.Content)
	o.journalAdd(task.Description, string(artifact.Approach), execRes, time.Since(start))

	outcome := memory.ExecutionOutcome{
		Success:    execRes.Success,
		Stdout:     execRes.Stdout,
		Stderr:     execRes.Stderr,
		ReturnCode: execRes.ReturnCode,
		Err:        execRes.Err,
	}
	if _, err := o.store.RecordExecution(ctx, task.Description, artifact.Content, outcome); err != nil {
		// Write failures are logged, not fatal to the task.
		o.logger.Warn("failed to record execution", zap.Error(err))
	}

	result.Success = execRes.Success
	result.Output = execRes.Stdout
	if !execRes.Success {
		result.Error = firstNonEmpty(execRes.Err, execRes.Stderr, "execution failed")
	}

	o.recordOutcome(ctx, task, result)
	return result
}

// runFastPath issues one ad-hoc command and returns its outcome. The fast
// path is terminal: a failed command reports an unsuccessful result, it does
// not fall through to the reasoning pipeline.
func (o *Orchestrator) runFastPath(ctx context.Context, task Task, command string) Result {
	o.logger.Debug("fast path matched", zap.String("command", command))

	start := time.Now()
	res := o.executor.RunAdHoc(ctx, "localhost", "shell", command)
	o.journalAdd(task.Description, "fastpath", res, time.Since(start))

	result := Result{Task: task.Description, FastPath: true}
	if res.Success && strings.TrimSpace(res.Stdout) != "" {
		result.Success = true
		result.Output = res.Stdout
	} else {
		result.Error = firstNonEmpty(res.Err, res.Stderr, "no output")
	}
	return result
}

// pastSolutions fetches up to two previously-successful artifacts to feed
// the planner.
func (o *Orchestrator) pastSolutions(ctx context.Context, description string) []pipeline.PastSolution {
	records := o.store.SuccessfulPlaybooks(ctx, description, 2)
	past := make([]pipeline.PastSolution, 0, len(records))
	for _, r := range records {
		past = append(past, pipeline.PastSolution{
			Task:    r.Metadata["task"],
			Content: r.Content,
		})
	}
	return past
}

// fail is the error terminal state: record, report, never propagate.
func (o *Orchestrator) fail(ctx context.Context, task Task, err error) Result {
	msg := fmt.Sprintf("failed to execute task: %v", err)
	o.logger.Error("task failed", zap.String("task", task.Description), zap.Error(err))

	if _, rerr := o.store.RecordInteraction(ctx, memory.KindError, msg, map[string]string{"task": task.Description}); rerr != nil {
		o.logger.Warn("failed to record error", zap.Error(rerr))
	}
	return Result{Task: task.Description, Error: msg}
}

func (o *Orchestrator) recordOutcome(ctx context.Context, task Task, result Result) {
	content, err := json.Marshal(result)
	if err != nil {
		o.logger.Warn("failed to encode task result", zap.Error(err))
		return
	}
	md := map[string]string{
		"task":    task.Description,
		"success": fmt.Sprintf("%t", result.Success),
	}
	if _, err := o.store.RecordInteraction(ctx, memory.KindTaskResult, string(content), md); err != nil {
		o.logger.Warn("failed to record task result", zap.Error(err))
	}
}

func (o *Orchestrator) journalAdd(task, approach string, res ansible.Result, elapsed time.Duration) {
	if o.journal == nil {
		return
	}
	if err := o.journal.Add(task, approach, res.Success, res.ReturnCode, elapsed); err != nil {
		o.logger.Warn("failed to journal execution", zap.Error(err))
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

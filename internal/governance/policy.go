package governance

import (
	"context"
	"fmt"
	"regexp"
)

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Request contains the generated automation to be evaluated before dispatch.
type Request struct {
	Task     string
	Approach string
	Content  string
}

// Result contains the outcome of a policy evaluation.
type Result struct {
	Effect Effect
	Reason string
}

// PolicyEngine evaluates generated automation against a set of rules.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// DefaultPolicyEngine is a basic implementation of PolicyEngine.
type DefaultPolicyEngine struct {
	DeniedApproaches map[string]bool
	DeniedRegex      []*regexp.Regexp
}

// NewDefaultPolicyEngine returns an engine preloaded with the default safety
// rules blocking destructive commands in generated content.
func NewDefaultPolicyEngine() *DefaultPolicyEngine {
	e := &DefaultPolicyEngine{
		DeniedApproaches: make(map[string]bool),
		DeniedRegex:      make([]*regexp.Regexp, 0),
	}
	_ = e.DenyContent(`rm\s+-rf\s+/`)
	_ = e.DenyContent(`mkfs`)
	_ = e.DenyContent(`shutdown`)
	_ = e.DenyContent(`\breboot\b`)
	return e
}

func (e *DefaultPolicyEngine) DenyApproach(name string) {
	e.DeniedApproaches[name] = true
}

func (e *DefaultPolicyEngine) DenyContent(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	e.DeniedRegex = append(e.DeniedRegex, re)
	return nil
}

func (e *DefaultPolicyEngine) Evaluate(ctx context.Context, req Request) (Result, error) {
	if e.DeniedApproaches[req.Approach] {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("Approach '%s' is restricted by system policy", req.Approach),
		}, nil
	}

	for _, re := range e.DeniedRegex {
		if re.MatchString(req.Content) {
			return Result{
				Effect: EffectDeny,
				Reason: fmt.Sprintf("Automation matches restricted pattern: %s", re.String()),
			}, nil
		}
	}

	return Result{
		Effect: EffectAllow,
		Reason: "Approved by default policy",
	}, nil
}

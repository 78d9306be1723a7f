// Package pipeline runs the three-role reasoning chain over a language
// model: a planner breaks the task down, a generator writes the automation,
// a reviewer vets it. The roles are strictly sequential; each consumes the
// prior role's full output plus the original task description.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"
)

// Stage names, used in error reporting.
type Stage string

const (
	StagePlanner   Stage = "planner"
	StageGenerator Stage = "generator"
	StageReviewer  Stage = "reviewer"
)

// ErrEmptyResponse marks a model reply with no usable text.
var ErrEmptyResponse = errors.New("model returned an empty response")

// maxContextRunes caps how much of a past solution is quoted into the
// planner prompt.
const maxContextRunes = 500

// maxPastSolutions caps how many previously-successful artifacts are offered
// to the planner.
const maxPastSolutions = 2

// PastSolution is a previously-successful automation artifact retrieved from
// the context store.
type PastSolution struct {
	Task    string
	Content string
}

// Pipeline chains the three roles over one model.
type Pipeline struct {
	model  llms.Model
	logger *zap.Logger
}

func New(model llms.Model, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{model: model, logger: logger}
}

// Run executes planner, generator and reviewer in order and returns the
// reviewer's raw text. The requested output templates are not validated
// here; that is the extractor's job. Any stage failure aborts the run.
func (p *Pipeline) Run(ctx context.Context, task string, past []PastSolution) (string, error) {
	plan, err := p.generate(ctx, StagePlanner, plannerPrompt(task, past))
	if err != nil {
		return "", err
	}
	p.logger.Debug("planner finished", zap.Int("chars", len(plan)))

	code, err := p.generate(ctx, StageGenerator, generatorPrompt(task, plan))
	if err != nil {
		return "", err
	}
	p.logger.Debug("generator finished", zap.Int("chars", len(code)))

	review, err := p.generate(ctx, StageReviewer, reviewerPrompt(task, code))
	if err != nil {
		return "", err
	}
	p.logger.Debug("reviewer finished", zap.Int("chars", len(review)))

	return review, nil
}

func (p *Pipeline) generate(ctx context.Context, stage Stage, prompt string) (string, error) {
	resp, err := p.model.GenerateContent(ctx, []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(prompt)},
		},
	}, llms.WithTemperature(0.1))
	if err != nil {
		return "", fmt.Errorf("%s stage: %w", stage, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		return "", fmt.Errorf("%s stage: %w", stage, ErrEmptyResponse)
	}
	return resp.Choices[0].Content, nil
}

// truncate bounds a past solution to maxContextRunes to cap prompt size.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

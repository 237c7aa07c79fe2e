// Package reasoning implements the self-assessment stage. It scores the
// latest result and decides whether the orchestrator should iterate again.
package reasoning

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"agentloop/internal/domain"
)

// defaultConfidence is used when the model gives no parseable score or the
// generator fails; a run always ends with a meaningful confidence estimate.
const defaultConfidence = 0.5

// Generator produces free-form text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Assessment is the outcome of one reasoning pass.
type Assessment struct {
	Confidence     float64
	Rationale      string
	ShouldContinue bool
}

// Stage scores accumulated message history against a confidence threshold.
type Stage struct {
	gen           Generator
	threshold     float64
	maxIterations int
	logger        *zap.Logger
}

// New creates a reasoning stage. threshold is the confidence at or above
// which a run finishes; maxIterations bounds the loop.
func New(gen Generator, threshold float64, maxIterations int, logger *zap.Logger) *Stage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stage{gen: gen, threshold: threshold, maxIterations: maxIterations, logger: logger}
}

// Assess scores the history after `iteration` completed inference passes.
// It never fails: a generator error is absorbed into the rationale with a
// default confidence, so forced termination still carries a score.
func (s *Stage) Assess(ctx context.Context, messages []domain.Message, iteration int) Assessment {
	reflection, err := s.gen.Generate(ctx, s.buildPrompt(messages, iteration))
	if err != nil {
		s.logger.Warn("reflection generation failed", zap.Error(err))
		return Assessment{
			Confidence:     defaultConfidence,
			Rationale:      fmt.Sprintf("reflection unavailable: %v", err),
			ShouldContinue: s.shouldContinue(defaultConfidence, iteration),
		}
	}

	confidence := extractConfidence(reflection)
	s.logger.Info("reasoning assessment",
		zap.Float64("confidence", confidence),
		zap.Int("iteration", iteration))

	return Assessment{
		Confidence:     confidence,
		Rationale:      strings.TrimSpace(reflection),
		ShouldContinue: s.shouldContinue(confidence, iteration),
	}
}

// shouldContinue is true only while confidence is below the threshold and
// the iteration budget is not exhausted.
func (s *Stage) shouldContinue(confidence float64, iteration int) bool {
	if iteration >= s.maxIterations {
		return false
	}
	return confidence < s.threshold
}

func (s *Stage) buildPrompt(messages []domain.Message, iteration int) string {
	var task string
	for _, m := range messages {
		if m.Role == domain.RoleUser {
			task = m.Content
			break
		}
	}

	recent := messages
	if len(recent) > 6 {
		recent = recent[len(recent)-6:]
	}

	var b strings.Builder
	b.WriteString("Reflect on the current progress towards completing this task:\n\n")
	fmt.Fprintf(&b, "Task: %s\n\nRecent turns:\n", task)
	for _, m := range recent {
		line := m.Content
		if line == "" && len(m.ToolCalls) > 0 {
			names := make([]string, 0, len(m.ToolCalls))
			for _, c := range m.ToolCalls {
				names = append(names, c.Name)
			}
			line = "(requested tools: " + strings.Join(names, ", ") + ")"
		}
		fmt.Fprintf(&b, "%s: %s\n", m.Role, line)
	}
	fmt.Fprintf(&b, "\nIteration: %d / %d\n\n", iteration, s.maxIterations)
	b.WriteString(`Assess whether the accumulated results answer the task.
Provide your confidence level (0.0 to 1.0) and brief reasoning.

Format:
CONFIDENCE: <0.0-1.0>
REASONING: <your assessment>

Your reflection:`)
	return b.String()
}

// extractConfidence pulls the CONFIDENCE line out of a reflection, clamped
// to [0, 1]. Missing or unparseable scores fall back to the default.
func extractConfidence(reflection string) float64 {
	for _, line := range strings.Split(reflection, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "CONFIDENCE:") {
			continue
		}
		raw := strings.TrimSpace(strings.TrimPrefix(line, "CONFIDENCE:"))
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return clamp(v)
		}
	}
	return defaultConfidence
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

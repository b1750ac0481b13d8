// Package generator assembles a bounded context from retrieved records and
// drives the generative model.
package generator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
)

// NoMatchResponse is the fixed answer returned when retrieval produced no
// records. The model is never invoked in that case.
const NoMatchResponse = "no relevant information found"

const defaultContextBudget = 4000

// Model completes a prompt, returning at most maxTokens tokens of text.
type Model interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Output is a generation outcome. Model failures are captured here rather
// than returned as errors; the caller decides whether to surface them.
type Output struct {
	Response string
	Err      string
}

// Generator builds the prompt and invokes the model under a deadline.
type Generator struct {
	model         Model
	contextBudget int
	timeout       time.Duration
	logger        *zap.Logger
}

// New creates a Generator. contextBudget is the maximum assembled context
// size in characters; non-positive values fall back to the default. timeout
// bounds each model invocation when positive.
func New(model Model, contextBudget int, timeout time.Duration, logger *zap.Logger) *Generator {
	if contextBudget <= 0 {
		contextBudget = defaultContextBudget
	}
	return &Generator{
		model:         model,
		contextBudget: contextBudget,
		timeout:       timeout,
		logger:        logger,
	}
}

// Generate produces an answer conditioned on the records. An empty record set
// short-circuits to NoMatchResponse without touching the model. A model
// failure or deadline expiry yields an Output with an empty response and the
// failure description.
func (g *Generator) Generate(ctx context.Context, query string, records []models.Record, maxLength, minLength int) Output {
	if len(records) == 0 {
		return Output{Response: NoMatchResponse}
	}

	prompt := g.assemble(query, records, minLength, maxLength)
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	text, err := g.model.Complete(ctx, prompt, maxLength)
	if err != nil {
		g.logger.Warn("text generation failed",
			zap.String("query", query),
			zap.Int("records", len(records)),
			zap.Error(err),
		)
		return Output{Err: fmt.Sprintf("response generation failed: %v", err)}
	}
	return Output{Response: strings.TrimSpace(text)}
}

// assemble renders the deterministic context template. Records arrive in
// relevance order, so when the character budget is exceeded whole lines are
// dropped from the end, keeping the most relevant context. A line is never
// cut mid-record.
func (g *Generator) assemble(query string, records []models.Record, minLength, maxLength int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "summarize in %d to %d words: Query: %s\n\nRelated information:\n", minLength, maxLength, query)

	for i, rec := range records {
		line := fmt.Sprintf("- User %d from %s on %s: %s\n",
			rec.UserID, rec.Country, rec.ProductName, rec.ReviewText)
		if sb.Len()+len(line) > g.contextBudget {
			g.logger.Debug("context budget reached, trailing records dropped",
				zap.Int("budget", g.contextBudget),
				zap.Int("kept", i),
				zap.Int("dropped", len(records)-i),
			)
			break
		}
		sb.WriteString(line)
	}
	return sb.String()
}

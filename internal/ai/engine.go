package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lifecoachhq/coachapi/internal/sqlexec"
)

// Engine is the generation service consumed by the chat pipeline. Every
// operation returns a GenerationResult whose Usage covers all provider
// calls made on its behalf; failures are reported on the result, not as
// errors.
type Engine struct {
	provider Provider
	exec     sqlexec.Executor
	logger   *slog.Logger
}

func NewEngine(provider Provider, exec sqlexec.Executor, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{provider: provider, exec: exec, logger: logger}
}

func (e *Engine) complete(ctx context.Context, model, prompt string) GenerationResult {
	comp, err := e.provider.Complete(ctx, model, []Message{{Role: "user", Content: prompt}})
	if err != nil {
		e.logger.Warn("generation failed", "model", model, "err", err)
		return GenerationResult{Success: false, Model: model, ErrorMessage: err.Error()}
	}
	return GenerationResult{
		Success: true,
		Content: strings.TrimSpace(comp.Content),
		Model:   model,
		Usage:   PriceUsage(model, comp.InputTokens, comp.OutputTokens),
	}
}

type ClassifyRequest struct {
	Message string
	Model   string
}

// ClassifyMessage labels a message "query" or "free_talk". Unparseable
// output falls back to "query" with Success still true, since the
// pipeline has a sensible default branch.
func (e *Engine) ClassifyMessage(ctx context.Context, req ClassifyRequest) GenerationResult {
	res := e.complete(ctx, req.Model, fmt.Sprintf(classifyPromptTmpl, req.Message))
	if !res.Success {
		return res
	}
	if strings.Contains(strings.ToLower(res.Content), "free_talk") {
		res.Content = "free_talk"
	} else {
		res.Content = "query"
	}
	return res
}

type AnswerRequest struct {
	Message string
	History string
	Model   string
}

// GenerateAnswer produces a conversational coach reply.
func (e *Engine) GenerateAnswer(ctx context.Context, req AnswerRequest) GenerationResult {
	prompt := fmt.Sprintf(answerPromptTmpl, coachSystemPrompt, req.History, req.Message)
	return e.complete(ctx, req.Model, prompt)
}

type SQLRequest struct {
	Question      string
	SchemaDoc     string
	Context       string
	Model         string
	RepeatIfFails int
}

// SQLOutcome bundles the final generation attempt with its execution
// result. Generation.Usage sums every attempt, including failed ones.
type SQLOutcome struct {
	Generation GenerationResult
	Execution  *sqlexec.Result
	Attempts   int
}

// ExecuteSQLWithFeedback generates SQL for the question and runs it,
// feeding execution errors back into the prompt and retrying up to
// RepeatIfFails extra times. The caller sees only the final outcome.
func (e *Engine) ExecuteSQLWithFeedback(ctx context.Context, req SQLRequest) SQLOutcome {
	retries := req.RepeatIfFails
	if retries < 0 {
		retries = 0
	}

	var contextBlock string
	if req.Context != "" {
		contextBlock = "Recent conversation:\n" + req.Context + "\n\n"
	}

	var usage Usage
	var lastSQL, lastErr string
	outcome := SQLOutcome{}

	for attempt := 0; attempt <= retries; attempt++ {
		outcome.Attempts = attempt + 1

		prompt := fmt.Sprintf(sqlPromptTmpl, req.SchemaDoc, contextBlock, req.Question)
		if lastErr != "" {
			prompt += "\n\n" + fmt.Sprintf(sqlFeedbackTmpl, lastSQL, lastErr)
		}

		gen := e.complete(ctx, req.Model, prompt)
		usage = usage.Add(gen.Usage)
		if !gen.Success {
			lastErr = gen.ErrorMessage
			outcome.Generation = gen
			continue
		}

		sql := CleanSQL(gen.Content)
		gen.Content = sql
		outcome.Generation = gen

		exec := e.exec.Run(ctx, sql)
		outcome.Execution = exec
		if exec.Success {
			break
		}
		lastSQL = sql
		lastErr = exec.ErrorMessage
		e.logger.Debug("sql execution failed, retrying", "attempt", attempt+1, "err", exec.ErrorMessage)
	}

	outcome.Generation.Usage = usage
	if outcome.Execution == nil {
		outcome.Execution = &sqlexec.Result{Success: false, ErrorMessage: outcome.Generation.ErrorMessage}
	}
	return outcome
}

type SummaryRequest struct {
	Question string
	SQL      string
	Rows     []map[string]any
	RowCount int
	History  string
	Model    string
}

// Summarize narrates a query result in natural language. Rows are left
// out of the prompt when the caller passes none (oversized results).
func (e *Engine) Summarize(ctx context.Context, req SummaryRequest) GenerationResult {
	data := "(rows omitted)"
	if req.Rows != nil {
		if b, err := json.Marshal(req.Rows); err == nil {
			data = string(b)
		}
	}
	var historyBlock string
	if req.History != "" {
		historyBlock = "Recent conversation:\n" + req.History + "\n\n"
	}
	prompt := fmt.Sprintf(summaryPromptTmpl, req.Question, req.SQL, req.RowCount, data, historyBlock)
	return e.complete(ctx, req.Model, prompt)
}

type VisualRequest struct {
	Query  string
	Result []map[string]any
	Guide  string
	Model  string
}

// VisualizationCode produces an HTML snippet rendering the result.
func (e *Engine) VisualizationCode(ctx context.Context, req VisualRequest) GenerationResult {
	data := "[]"
	if b, err := json.Marshal(req.Result); err == nil {
		data = string(b)
	}
	var guideBlock string
	if req.Guide != "" {
		guideBlock = "Visualization guide:\n" + req.Guide + "\n\n"
	}
	prompt := fmt.Sprintf(visualPromptTmpl, req.Query, data, guideBlock)
	res := e.complete(ctx, req.Model, prompt)
	if res.Success {
		res.Content = stripFences(res.Content)
	}
	return res
}

type SectionsRequest struct {
	Question  string
	SchemaDoc string
	Model     string
}

// RelevantSections asks which documentation sections matter for the
// question. Content is a comma-separated list; use ParseSectionList.
func (e *Engine) RelevantSections(ctx context.Context, req SectionsRequest) GenerationResult {
	return e.complete(ctx, req.Model, fmt.Sprintf(sectionsPromptTmpl, req.SchemaDoc, req.Question))
}

// ParseSectionList splits a model-produced section listing into clean
// identifiers. Accepts comma- or newline-separated output.
func ParseSectionList(s string) []string {
	s = strings.ReplaceAll(s, "\n", ",")
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(strings.TrimSpace(p), "`\"'-*")
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// TrimDocument keeps only the markdown sections whose heading mentions
// one of the wanted identifiers. With no matches the full document is
// returned, so a bad section list cannot blank out the schema.
func TrimDocument(doc string, wanted []string) string {
	if len(wanted) == 0 {
		return doc
	}
	lowered := make([]string, len(wanted))
	for i, w := range wanted {
		lowered[i] = strings.ToLower(w)
	}

	var kept []string
	var current []string
	keep := false
	flush := func() {
		if keep && len(current) > 0 {
			kept = append(kept, strings.Join(current, "\n"))
		}
		current = nil
	}
	for _, line := range strings.Split(doc, "\n") {
		if strings.HasPrefix(line, "#") {
			flush()
			head := strings.ToLower(line)
			keep = false
			for _, w := range lowered {
				if strings.Contains(head, w) {
					keep = true
					break
				}
			}
		}
		current = append(current, line)
	}
	flush()

	if len(kept) == 0 {
		return doc
	}
	return strings.Join(kept, "\n")
}

// CleanSQL strips markdown fences and trailing semicolons from
// model-generated SQL.
func CleanSQL(s string) string {
	s = stripFences(s)
	return strings.TrimSuffix(strings.TrimSpace(s), ";")
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if i := strings.Index(s, "\n"); i >= 0 {
			s = s[i+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

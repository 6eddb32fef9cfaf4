package chat

import (
	"context"

	"github.com/lifecoachhq/coachapi/internal/ai"
	"github.com/lifecoachhq/coachapi/internal/sqlexec"
)

// Generator is the generation capability the pipeline consumes. The
// engine's SQL operation carries its own retry contract: it retries
// internally up to the request's budget and surfaces only the final
// outcome.
type Generator interface {
	ClassifyMessage(ctx context.Context, req ai.ClassifyRequest) ai.GenerationResult
	GenerateAnswer(ctx context.Context, req ai.AnswerRequest) ai.GenerationResult
	ExecuteSQLWithFeedback(ctx context.Context, req ai.SQLRequest) ai.SQLOutcome
	Summarize(ctx context.Context, req ai.SummaryRequest) ai.GenerationResult
	VisualizationCode(ctx context.Context, req ai.VisualRequest) ai.GenerationResult
	RelevantSections(ctx context.Context, req ai.SectionsRequest) ai.GenerationResult
}

// ProcessResult is what SubmitMessage hands back. Expected failures
// (generation or execution) surface as Success=false with the partial
// stage results attached; the entry still joins the history either way.
type ProcessResult struct {
	Success       bool                 `json:"success"`
	MessageID     int                  `json:"message_id"`
	MessageType   MessageType          `json:"message_type"`
	Answer        string               `json:"answer,omitempty"`
	Summary       string               `json:"summary,omitempty"`
	SQLGeneration *ai.GenerationResult `json:"sql_generation_result,omitempty"`
	Execution     *sqlexec.Result      `json:"query_execution_result,omitempty"`
	Usage         UsageStats           `json:"usage_stats"`
	ErrorMessage  string               `json:"error_message,omitempty"`
}

// Rows above this count are left out of the summary prompt.
const summaryRowLimit = 500

// pipeline drives one message through classification, the query or
// free-talk branch, and the summary/echo side effects. It is strictly
// sequential: later stages read fields earlier stages wrote on the same
// entry.
type pipeline struct {
	s *Session
}

func (p *pipeline) process(ctx context.Context, entry *MessageEntry) *ProcessResult {
	s := p.s
	cfg := entry.Config

	var clsUsage ai.Usage
	if cfg.FreeChat {
		cls := s.engine.ClassifyMessage(ctx, ai.ClassifyRequest{
			Message: entry.Message,
			Model:   cfg.TypeCheckerModel,
		})
		entry.Type = MessageTypeQuery
		if cls.Content == string(MessageTypeFreeTalk) {
			entry.Type = MessageTypeFreeTalk
		}
		clsUsage = cls.Usage
		s.nonQueryUsage.Merge(cls.Usage)
		entry.Usage.Merge(cls.Usage)
	} else {
		// Deliberate fast path: no classification call, query intent assumed.
		entry.Type = MessageTypeQuery
	}
	s.logger.Debug("message classified", "id", entry.ID, "type", entry.Type)

	var res *ProcessResult
	if entry.Type == MessageTypeQuery {
		res = p.processQuery(ctx, entry)
	} else {
		res = p.processFreeTalk(ctx, entry)
	}
	if cfg.FreeChat {
		res.Usage.Merge(clsUsage)
	}
	return res
}

func (p *pipeline) processQuery(ctx context.Context, entry *MessageEntry) *ProcessResult {
	s := p.s
	cfg := entry.Config

	var window string
	if cfg.UseChatContextForSQL {
		window = p.historyContext(cfg)
		entry.Context = window
	}

	res := &ProcessResult{MessageID: entry.ID, MessageType: entry.Type}

	schemaDoc := s.schemaDoc
	if cfg.EnableRAGOptimization {
		sections := s.engine.RelevantSections(ctx, ai.SectionsRequest{
			Question:  entry.Message,
			SchemaDoc: schemaDoc,
			Model:     cfg.Model,
		})
		s.queryUsage.Merge(sections.Usage)
		entry.Usage.Merge(sections.Usage)
		res.Usage.Merge(sections.Usage)
		if sections.Success {
			trimmed := ai.TrimDocument(schemaDoc, ai.ParseSectionList(sections.Content))
			s.logger.Debug("schema doc trimmed", "from", len(schemaDoc), "to", len(trimmed))
			schemaDoc = trimmed
		}
	}

	outcome := s.engine.ExecuteSQLWithFeedback(ctx, ai.SQLRequest{
		Question:      entry.Message,
		SchemaDoc:     schemaDoc,
		Context:       window,
		Model:         cfg.Model,
		RepeatIfFails: cfg.RepeatIfFails,
	})

	entry.Model = cfg.Model
	entry.SQL = outcome.Generation.Content
	s.queryUsage.Merge(outcome.Generation.Usage)
	entry.Usage.Merge(outcome.Generation.Usage)
	res.Usage.Merge(outcome.Generation.Usage)

	res.SQLGeneration = &outcome.Generation
	res.Execution = outcome.Execution
	res.Success = outcome.Execution.Success
	if !res.Success {
		// Failure is part of the returned result; the entry still gets
		// appended so the transcript shows what happened.
		res.ErrorMessage = outcome.Execution.ErrorMessage
		return res
	}

	entry.SQLResult = outcome.Execution.Rows
	entry.SQLRowCount = outcome.Execution.RowCount

	summary := p.makeSummary(ctx, entry)
	s.nonQueryUsage.Merge(summary.Usage)
	res.Usage.Merge(summary.Usage)
	if summary.Success {
		entry.Summary = summary.Content
		res.Summary = summary.Content
		// Re-inject the narrated answer as a first-class, replayable
		// history entry authored by the AI identity. Bypasses
		// classification entirely.
		s.appendSynthetic(summary.Content)
	}

	return res
}

func (p *pipeline) makeSummary(ctx context.Context, entry *MessageEntry) ai.GenerationResult {
	cfg := entry.Config

	var history string
	if cfg.UseChatContextForSummary {
		history = p.historyContext(cfg)
	}

	rows := entry.SQLResult
	if entry.SQLRowCount > summaryRowLimit {
		rows = nil
	}

	return p.s.engine.Summarize(ctx, ai.SummaryRequest{
		Question: entry.Message,
		SQL:      entry.SQL,
		Rows:     rows,
		RowCount: entry.SQLRowCount,
		History:  history,
		Model:    cfg.SummaryModel,
	})
}

func (p *pipeline) processFreeTalk(ctx context.Context, entry *MessageEntry) *ProcessResult {
	s := p.s
	cfg := entry.Config

	window := p.historyContext(cfg)
	entry.Context = window
	entry.Model = cfg.AIChatModel

	gen := s.engine.GenerateAnswer(ctx, ai.AnswerRequest{
		Message: entry.Message,
		History: window,
		Model:   cfg.AIChatModel,
	})
	s.nonQueryUsage.Merge(gen.Usage)
	entry.Usage.Merge(gen.Usage)

	res := &ProcessResult{
		Success:      gen.Success,
		MessageID:    entry.ID,
		MessageType:  entry.Type,
		Answer:       gen.Content,
		ErrorMessage: gen.ErrorMessage,
	}
	res.Usage.Merge(gen.Usage)
	return res
}

// historyContext renders the last-N window with bulky fields stripped
// unless the config opts them in.
func (p *pipeline) historyContext(cfg MessageConfig) string {
	var exclude []ContextField
	if !cfg.IncludeSQLInContext {
		exclude = append(exclude, FieldSQL)
	}
	if !cfg.IncludeDataInContext {
		exclude = append(exclude, FieldData)
	}
	h := p.s.history
	return h.Stringify(h.LastN(cfg.HistoryRange), exclude...)
}

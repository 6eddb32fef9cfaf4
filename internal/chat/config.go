package chat

// MessageConfig is the fully resolved per-message configuration. A
// session resolves request-level overrides onto its defaults before the
// pipeline runs, so every field here is always set.
type MessageConfig struct {
	Model                    string `json:"model"`
	FreeChat                 bool   `json:"free_chat"`
	UseChatContextForSQL     bool   `json:"use_chat_context_for_sql"`
	UseChatContextForSummary bool   `json:"use_chat_context_for_summary"`
	IncludeSQLInContext      bool   `json:"include_sql_in_chat_context"`
	IncludeDataInContext     bool   `json:"include_data_in_chat_context"`
	HistoryRange             int    `json:"history_range_for_context"`
	RepeatIfFails            int    `json:"repeat_if_fails"`
	EnableRAGOptimization    bool   `json:"enable_rag_optimization"`

	// Per-sub-task model overrides.
	VisualizationModel string `json:"pick_model_for_visualisation"`
	SummaryModel       string `json:"pick_model_for_summary"`
	AIChatModel        string `json:"pick_model_for_ai_chat"`
	TypeCheckerModel   string `json:"pick_model_for_message_type_checker"`
}

// MessageOptions carries request-level overrides. Nil fields fall back
// to the session defaults.
type MessageOptions struct {
	Model                    *string `json:"model,omitempty"`
	FreeChat                 *bool   `json:"free_chat,omitempty"`
	UseChatContextForSQL     *bool   `json:"use_chat_context_for_sql,omitempty"`
	UseChatContextForSummary *bool   `json:"use_chat_context_for_summary,omitempty"`
	IncludeSQLInContext      *bool   `json:"include_sql_in_chat_context,omitempty"`
	IncludeDataInContext     *bool   `json:"include_data_in_chat_context,omitempty"`
	HistoryRange             *int    `json:"history_range_for_context,omitempty"`
	RepeatIfFails            *int    `json:"repeat_if_fails,omitempty"`
	EnableRAGOptimization    *bool   `json:"enable_rag_optimization,omitempty"`
	VisualizationModel       *string `json:"pick_model_for_visualisation,omitempty"`
	SummaryModel             *string `json:"pick_model_for_summary,omitempty"`
	AIChatModel              *string `json:"pick_model_for_ai_chat,omitempty"`
	TypeCheckerModel         *string `json:"pick_model_for_message_type_checker,omitempty"`
}

const (
	defaultHistoryRange  = 5
	defaultRepeatIfFails = 2
)

func defaultMessageConfig(model string) MessageConfig {
	return MessageConfig{
		Model:              model,
		HistoryRange:       defaultHistoryRange,
		RepeatIfFails:      defaultRepeatIfFails,
		VisualizationModel: model,
		SummaryModel:       model,
		AIChatModel:        model,
		TypeCheckerModel:   model,
	}
}

func (c MessageConfig) apply(o *MessageOptions) MessageConfig {
	if o == nil {
		return c
	}
	if o.Model != nil {
		c.Model = *o.Model
	}
	if o.FreeChat != nil {
		c.FreeChat = *o.FreeChat
	}
	if o.UseChatContextForSQL != nil {
		c.UseChatContextForSQL = *o.UseChatContextForSQL
	}
	if o.UseChatContextForSummary != nil {
		c.UseChatContextForSummary = *o.UseChatContextForSummary
	}
	if o.IncludeSQLInContext != nil {
		c.IncludeSQLInContext = *o.IncludeSQLInContext
	}
	if o.IncludeDataInContext != nil {
		c.IncludeDataInContext = *o.IncludeDataInContext
	}
	if o.HistoryRange != nil {
		c.HistoryRange = *o.HistoryRange
	}
	if o.RepeatIfFails != nil {
		c.RepeatIfFails = *o.RepeatIfFails
	}
	if o.EnableRAGOptimization != nil {
		c.EnableRAGOptimization = *o.EnableRAGOptimization
	}
	if o.VisualizationModel != nil {
		c.VisualizationModel = *o.VisualizationModel
	}
	if o.SummaryModel != nil {
		c.SummaryModel = *o.SummaryModel
	}
	if o.AIChatModel != nil {
		c.AIChatModel = *o.AIChatModel
	}
	if o.TypeCheckerModel != nil {
		c.TypeCheckerModel = *o.TypeCheckerModel
	}
	return c
}

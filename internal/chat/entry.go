package chat

import "time"

type MessageType string

const (
	MessageTypeQuery    MessageType = "query"
	MessageTypeFreeTalk MessageType = "free_talk"
)

const (
	UserTypeHuman = "human"
	UserTypeAI    = "ai"
)

// AIUserID is the fixed id of the synthetic assistant identity that
// authors echo messages.
const AIUserID = 999

// User is a session participant.
type User struct {
	ID            int
	Name          string
	Type          string
	AllowedModels []string
}

// AIUser returns the synthetic assistant user for a session.
func AIUser(allowedModels []string) User {
	return User{ID: AIUserID, Name: "ai", Type: UserTypeAI, AllowedModels: allowedModels}
}

// MessageEntry is one chat turn. The pipeline mutates it in place as
// stages complete; it joins the history exactly once, after processing
// (echo entries are appended immediately on creation).
type MessageEntry struct {
	ID          int              `json:"id"`
	UserID      int              `json:"user_id"`
	UserName    string           `json:"user_name"`
	UserType    string           `json:"user_type"`
	Message     string           `json:"message"`
	Type        MessageType      `json:"message_type,omitempty"` // set exactly once, before any branch reads it
	Model       string           `json:"model,omitempty"`
	SQL         string           `json:"sql,omitempty"`
	SQLResult   []map[string]any `json:"sql_result,omitempty"`
	SQLRowCount int              `json:"sql_result_row_count,omitempty"`
	VisualCode  string           `json:"visual_code,omitempty"`
	Summary     string           `json:"summary,omitempty"`
	Context     string           `json:"context,omitempty"`
	Config      MessageConfig    `json:"message_config"`
	Usage       UsageStats       `json:"usage_stats"`
	CreatedAt   time.Time        `json:"created_at"`
}

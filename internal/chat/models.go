package chat

import "time"

// Thread is a persisted coaching conversation.
type Thread struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	ThreadID  string    `gorm:"type:varchar(26);uniqueIndex;not null" json:"thread_id"`
	UserID    uint64    `gorm:"index;not null" json:"-"`
	Title     string    `gorm:"type:varchar(128)" json:"title"`
	Settings  string    `gorm:"type:text" json:"-"` // JSON-encoded ThreadSettings
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Thread) TableName() string { return "chat_threads" }

// ThreadSettings is the JSON shape stored in Thread.Settings.
type ThreadSettings struct {
	Model       string `json:"model,omitempty"`
	HistorySize int    `json:"history_size,omitempty"`
}

// Message is one persisted turn in a thread.
type Message struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ThreadID       string    `gorm:"type:varchar(26);not null;index:idx_chat_msg_user_thread_id,priority:2;index:uniq_chat_msg_idempo,unique,priority:2" json:"thread_id"`
	UserID         uint64    `gorm:"not null;index:idx_chat_msg_user_thread_id,priority:1;index:uniq_chat_msg_idempo,unique,priority:1" json:"-"`
	UserName       string    `gorm:"type:varchar(64)" json:"user_name"`
	Role           string    `gorm:"type:varchar(16);index;not null" json:"role"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	Format         string    `gorm:"type:varchar(16);not null;default:text" json:"format"`
	IdempotencyKey *string   `gorm:"type:varchar(128);index:uniq_chat_msg_idempo,unique,priority:3" json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

func (Message) TableName() string { return "chat_messages" }

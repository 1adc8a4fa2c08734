package models

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"` // user or assistant
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is the per-user chat state. DocumentText stays empty until a
// document has been loaded successfully.
type Session struct {
	ID             string    `json:"id"`
	Messages       []Message `json:"messages"`
	DocumentName   string    `json:"document_name"`
	DocumentText   string    `json:"-"`
	DocumentPages  int       `json:"document_pages"`
	DocumentTokens int       `json:"document_tokens"`
	CreatedAt      time.Time `json:"created_at"`
}

func (s *Session) HasDocument() bool {
	return s.DocumentText != ""
}

package domain

import "time"

// ChatMessage is one line of a chat thread between two users.
type ChatMessage struct {
	ID        string
	ChatID    string
	SenderID  string
	Text      string
	System    bool
	CreatedAt time.Time
}

// Package domain defines the core types shared across TelScan subsystems.
package domain

import "time"

// Group is a monitored chat. Identifier is the user-entered form: a
// numeric id, a -100-prefixed supergroup id, a @username, or an invite
// link. It is stored as entered; comparisons go through monitor.Normalize.
type Group struct {
	ID            int64  `json:"id"`
	Identifier    string `json:"identifier"`
	Name          string `json:"name"`
	LogoPath      string `json:"logoPath,omitempty"`
	WebhookURL    string `json:"webhookUrl,omitempty"`
	WebhookSecret string `json:"-"`
}

// Keyword is a watched text fragment associated with one or more groups.
type Keyword struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// MatchedMessage is one keyword hit, written exactly once and never
// mutated afterwards.
type MatchedMessage struct {
	ID        int64     `json:"id"`
	GroupName string    `json:"groupName"`
	Content   string    `json:"content"`
	Sender    string    `json:"sender"`
	Date      time.Time `json:"date"`
	Keyword   string    `json:"keyword"`
}

// Settings holds the global notification target. Groups may override it.
type Settings struct {
	WebhookURL    string `json:"webhookUrl"`
	WebhookSecret string `json:"-"`
}

// MessageEvent is one inbound message delivered by the session bridge's
// subscription loop.
type MessageEvent struct {
	MessageID       int64     `json:"messageId"`
	ChatID          int64     `json:"chatId"`
	ChatTitle       string    `json:"chatTitle,omitempty"`
	ChatUsername    string    `json:"chatUsername,omitempty"`
	SenderUsername  string    `json:"senderUsername,omitempty"`
	SenderFirstName string    `json:"senderFirstName,omitempty"`
	SenderLastName  string    `json:"senderLastName,omitempty"`
	Text            string    `json:"text"`
	Date            time.Time `json:"date"`
	ReplyToID       int64     `json:"replyToId,omitempty"`
	HasPhoto        bool      `json:"hasPhoto,omitempty"`
	HasVideo        bool      `json:"hasVideo,omitempty"`
}

// SenderLabel resolves the display label for the event's sender: a unique
// handle when available, then "first last", then the chat title.
func (e MessageEvent) SenderLabel() string {
	if e.SenderUsername != "" {
		return e.SenderUsername
	}
	name := e.SenderFirstName
	if e.SenderLastName != "" {
		if name != "" {
			name += " "
		}
		name += e.SenderLastName
	}
	if name != "" {
		return name
	}
	return e.ChatTitle
}

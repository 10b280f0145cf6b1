package remote

import (
	"context"
	"time"

	"github.com/Kalinx99/TelScan/internal/domain"
)

// Entity is a resolved chat, channel, or user.
type Entity struct {
	ID       int64  `json:"id"`
	Title    string `json:"title,omitempty"`
	Username string `json:"username,omitempty"`
}

// HistoryMessage is one message from a chat's history.
type HistoryMessage struct {
	ID              int64     `json:"id"`
	SenderUsername  string    `json:"senderUsername,omitempty"`
	SenderFirstName string    `json:"senderFirstName,omitempty"`
	SenderLastName  string    `json:"senderLastName,omitempty"`
	Text            string    `json:"text"`
	Date            time.Time `json:"date"`
	ReplyToID       int64     `json:"replyToId,omitempty"`
	HasPhoto        bool      `json:"hasPhoto,omitempty"`
	HasVideo        bool      `json:"hasVideo,omitempty"`
}

// Session is the live authenticated connection. It is owned by the
// session bridge's worker goroutine and must not be shared.
type Session interface {
	// Events delivers inbound message events. The channel is closed when
	// the connection is torn down.
	Events() <-chan domain.MessageEvent

	// Resolve looks up an entity by canonical reference (numeric id,
	// username, or invite hash).
	Resolve(ctx context.Context, ref string) (Entity, error)

	// Join joins the chat behind the reference and returns its entity.
	Join(ctx context.Context, ref string) (Entity, error)

	// History returns up to limit messages with id greater than offsetID,
	// oldest first.
	History(ctx context.Context, peerID, offsetID int64, limit int) ([]HistoryMessage, error)

	// ProfilePhoto downloads the current profile photo of an entity.
	// Returns nil data when the entity has no photo.
	ProfilePhoto(ctx context.Context, peerID int64) ([]byte, error)

	// Close requests a graceful disconnect.
	Close(ctx context.Context) error

	// Done is closed when the connection is gone, gracefully or not.
	Done() <-chan struct{}
}

// Dialer establishes sessions. Dial blocks through connection and
// authorization, which may require interactive input for a fresh login.
type Dialer interface {
	Dial(ctx context.Context) (Session, error)
}

// CodePrompt requests a value from a human during interactive
// authorization (login code, two-factor password).
type CodePrompt func(prompt string) (string, error)

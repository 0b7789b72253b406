package relay

import (
	"context"
	"time"
)

// IncomingMessage is a read-only snapshot of a platform message taken when
// the event was received.
type IncomingMessage struct {
	ID              string
	AuthorID        string
	AuthorIsBot     bool
	ChannelID       string
	ParentChannelID string
	Content         string
	SentAt          time.Time

	// Reply reference. ReferencedAuthorID is filled when the platform
	// delivered the referenced message along with the event.
	ReferenceMessageID string
	ReferenceChannelID string
	ReferencedAuthorID string
}

type ControlStyle int

const (
	ControlNeutral ControlStyle = iota
	ControlPositive
	ControlNegative
)

type Control struct {
	CustomID string
	Label    string
	Style    ControlStyle
}

// Panel is a styled reply. A nil Controls slice on edit leaves the
// existing controls untouched.
type Panel struct {
	Body     string
	Footer   string
	Color    int
	Controls []Control
}

// Reply is either plain text or a panel.
type Reply struct {
	Text  string
	Panel *Panel
	// Quiet suppresses the notification to the author being replied to.
	Quiet bool
}

// Platform is the subset of the chat platform client the relay needs.
type Platform interface {
	Typing(ctx context.Context, channelID string) error
	Send(ctx context.Context, channelID, replyToID string, reply Reply) (string, error)
	Edit(ctx context.Context, channelID, messageID string, reply Reply) (string, error)
	Delete(ctx context.Context, channelID, messageID string) error
	History(ctx context.Context, channelID, beforeID string, limit int) ([]IncomingMessage, error)
	Message(ctx context.Context, channelID, messageID string) (IncomingMessage, error)
}

// Responder answers a single control activation.
type Responder interface {
	RespondPrivate(ctx context.Context, text string) error
	DeferUpdate(ctx context.Context) error
	FollowupPrivate(ctx context.Context, text string) error
}

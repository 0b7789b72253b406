package relay

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

func mentionTokens(botUserID string) []string {
	botUserID = strings.TrimSpace(botUserID)
	if botUserID == "" {
		return nil
	}
	return []string{"<@" + botUserID + ">", "<@!" + botUserID + ">"}
}

// MentionsBot reports whether text carries a mention token for botUserID.
func MentionsBot(text, botUserID string) bool {
	for _, token := range mentionTokens(botUserID) {
		if strings.Contains(text, token) {
			return true
		}
	}
	return false
}

// StripMentions removes every mention token for botUserID and trims the
// result. Removal repeats until no token is left, so the function is
// idempotent even for nested input such as "<@<@1>1>".
func StripMentions(text, botUserID string) string {
	tokens := mentionTokens(botUserID)
	for len(tokens) > 0 {
		next := text
		for _, token := range tokens {
			next = strings.ReplaceAll(next, token, "")
		}
		if next == text {
			break
		}
		text = next
	}
	return strings.TrimSpace(text)
}

type MessageFetcher interface {
	Message(ctx context.Context, channelID, messageID string) (IncomingMessage, error)
}

// Qualifier decides whether a message is addressed to the bot inside the
// monitored channel or one of its threads.
type Qualifier struct {
	MonitoredChannelID string
	BotUserID          string
	Messages           MessageFetcher
	Logger             *slog.Logger
	FetchTimeout       time.Duration
}

// InScope checks the cheap conditions: channel (or thread parent) and a
// human author.
func (q Qualifier) InScope(msg IncomingMessage) bool {
	monitored := strings.TrimSpace(q.MonitoredChannelID)
	if monitored == "" || msg.AuthorIsBot {
		return false
	}
	return msg.ChannelID == monitored || msg.ParentChannelID == monitored
}

func (q Qualifier) Qualifies(ctx context.Context, msg IncomingMessage) bool {
	if !q.InScope(msg) {
		return false
	}
	if MentionsBot(msg.Content, q.BotUserID) {
		return true
	}
	return q.repliesToBot(ctx, msg)
}

func (q Qualifier) repliesToBot(ctx context.Context, msg IncomingMessage) bool {
	botUserID := strings.TrimSpace(q.BotUserID)
	if botUserID == "" {
		return false
	}
	if msg.ReferencedAuthorID != "" {
		return msg.ReferencedAuthorID == botUserID
	}
	refID := strings.TrimSpace(msg.ReferenceMessageID)
	if refID == "" || q.Messages == nil {
		return false
	}
	refChannelID := strings.TrimSpace(msg.ReferenceChannelID)
	if refChannelID == "" {
		refChannelID = msg.ChannelID
	}
	fetchCtx, cancel := boundedContext(ctx, q.FetchTimeout)
	defer cancel()
	ref, err := q.Messages.Message(fetchCtx, refChannelID, refID)
	if err != nil {
		if q.Logger != nil {
			q.Logger.Debug("relay_reference_fetch_error", "channel_id", refChannelID, "reference_id", refID, "error", err.Error())
		}
		return false
	}
	return ref.AuthorID == botUserID
}

func boundedContext(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if d <= 0 {
		d = DefaultPlatformTimeout
	}
	return context.WithTimeout(ctx, d)
}

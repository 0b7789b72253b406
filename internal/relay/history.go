package relay

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/quailyquaily/kbrelay/kb"
)

// MaxHistoryFetch is the largest window a single history request may ask for.
const MaxHistoryFetch = 100

type HistorySource interface {
	History(ctx context.Context, channelID, beforeID string, limit int) ([]IncomingMessage, error)
}

// Sampler turns the messages preceding a query into role-tagged context.
type Sampler struct {
	Source       HistorySource
	BotUserID    string
	Logger       *slog.Logger
	FetchTimeout time.Duration
}

// Sample returns up to count messages strictly before beforeID, oldest
// first, with mentions stripped and empty entries dropped. Fetch errors are
// logged and yield an empty context.
func (s Sampler) Sample(ctx context.Context, channelID, beforeID string, count int) []kb.Message {
	if count <= 0 || s.Source == nil {
		return nil
	}
	if count > MaxHistoryFetch {
		count = MaxHistoryFetch
	}
	fetchCtx, cancel := boundedContext(ctx, s.FetchTimeout)
	defer cancel()
	fetched, err := s.Source.History(fetchCtx, channelID, beforeID, count)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Warn("relay_history_fetch_error", "channel_id", channelID, "before_id", beforeID, "error", err.Error())
		}
		return nil
	}
	if len(fetched) > count {
		fetched = fetched[:count]
	}
	return s.normalize(fetched)
}

func (s Sampler) normalize(fetched []IncomingMessage) []kb.Message {
	ordered := make([]IncomingMessage, len(fetched))
	// Platforms list history newest first.
	for i, msg := range fetched {
		ordered[len(fetched)-1-i] = msg
	}
	if allTimestamped(ordered) {
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].SentAt.Before(ordered[j].SentAt)
		})
	}

	out := make([]kb.Message, 0, len(ordered))
	for _, msg := range ordered {
		content := StripMentions(msg.Content, s.BotUserID)
		if content == "" {
			continue
		}
		role := kb.RoleUser
		if strings.TrimSpace(s.BotUserID) != "" && msg.AuthorID == s.BotUserID {
			role = kb.RoleAssistant
		}
		out = append(out, kb.Message{Role: role, Content: content})
	}
	return out
}

func allTimestamped(items []IncomingMessage) bool {
	for _, item := range items {
		if item.SentAt.IsZero() {
			return false
		}
	}
	return true
}

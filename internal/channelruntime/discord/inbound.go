package discord

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/quailyquaily/kbrelay/internal/relay"
)

// ChannelLookup resolves channel metadata over REST.
type ChannelLookup interface {
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
}

// ParentResolver maps a channel id to its parent channel id when the
// channel is a thread. Results are cached for the process lifetime.
type ParentResolver struct {
	State   *discordgo.State
	Lookup  ChannelLookup
	Timeout time.Duration

	mu    sync.Mutex
	cache map[string]string
}

func (r *ParentResolver) ParentOf(ctx context.Context, channelID string) string {
	channelID = strings.TrimSpace(channelID)
	if r == nil || channelID == "" {
		return ""
	}
	r.mu.Lock()
	if parent, ok := r.cache[channelID]; ok {
		r.mu.Unlock()
		return parent
	}
	r.mu.Unlock()

	ch := r.fromState(channelID)
	if ch == nil && r.Lookup != nil {
		lookupCtx, cancel := boundedContext(ctx, r.Timeout)
		fetched, err := r.Lookup.Channel(channelID, discordgo.WithContext(lookupCtx))
		cancel()
		if err != nil {
			return ""
		}
		ch = fetched
	}
	if ch == nil {
		return ""
	}
	parent := ""
	if ch.IsThread() {
		parent = strings.TrimSpace(ch.ParentID)
	}
	r.mu.Lock()
	if r.cache == nil {
		r.cache = make(map[string]string)
	}
	r.cache[channelID] = parent
	r.mu.Unlock()
	return parent
}

func (r *ParentResolver) fromState(channelID string) *discordgo.Channel {
	if r.State == nil {
		return nil
	}
	ch, err := r.State.Channel(channelID)
	if err != nil {
		return nil
	}
	return ch
}

// InboundMessage snapshots a discordgo message for the relay. Embed-only
// messages (the bot's own panels) expose their description as content.
func InboundMessage(m *discordgo.Message, parentChannelID string) relay.IncomingMessage {
	if m == nil {
		return relay.IncomingMessage{}
	}
	msg := relay.IncomingMessage{
		ID:              m.ID,
		ChannelID:       m.ChannelID,
		ParentChannelID: strings.TrimSpace(parentChannelID),
		Content:         messageText(m),
		SentAt:          m.Timestamp,
	}
	if m.Author != nil {
		msg.AuthorID = m.Author.ID
		msg.AuthorIsBot = m.Author.Bot
	}
	if m.MessageReference != nil {
		msg.ReferenceMessageID = m.MessageReference.MessageID
		msg.ReferenceChannelID = m.MessageReference.ChannelID
	}
	if m.ReferencedMessage != nil && m.ReferencedMessage.Author != nil {
		msg.ReferencedAuthorID = m.ReferencedMessage.Author.ID
	}
	return msg
}

func messageText(m *discordgo.Message) string {
	if strings.TrimSpace(m.Content) != "" {
		return m.Content
	}
	for _, embed := range m.Embeds {
		if embed == nil {
			continue
		}
		if text := strings.TrimSpace(embed.Description); text != "" {
			return text
		}
	}
	return ""
}

// FeedbackEventFromInteraction extracts a control activation. ok is false for
// anything other than a message component interaction.
func FeedbackEventFromInteraction(i *discordgo.Interaction) (relay.FeedbackEvent, bool) {
	if i == nil || i.Type != discordgo.InteractionMessageComponent {
		return relay.FeedbackEvent{}, false
	}
	ev := relay.FeedbackEvent{
		CustomID:  i.MessageComponentData().CustomID,
		ChannelID: i.ChannelID,
	}
	if i.Message != nil {
		ev.MessageID = i.Message.ID
	}
	switch {
	case i.Member != nil && i.Member.User != nil:
		ev.UserID = i.Member.User.ID
	case i.User != nil:
		ev.UserID = i.User.ID
	}
	return ev, true
}

func boundedContext(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if d <= 0 {
		d = relay.DefaultPlatformTimeout
	}
	return context.WithTimeout(ctx, d)
}

package discord

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/quailyquaily/kbrelay/internal/outputfmt"
	"github.com/quailyquaily/kbrelay/internal/relay"
)

// Session is the subset of *discordgo.Session used for delivery.
type Session interface {
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type DeliveryOptions struct {
	Session Session
	Parents *ParentResolver
}

// Delivery implements relay.Platform on top of a Discord session.
type Delivery struct {
	session Session
	parents *ParentResolver
}

func NewDelivery(opts DeliveryOptions) (*Delivery, error) {
	if opts.Session == nil {
		return nil, fmt.Errorf("discord session is required")
	}
	return &Delivery{session: opts.Session, parents: opts.Parents}, nil
}

func (d *Delivery) Typing(ctx context.Context, channelID string) error {
	return d.session.ChannelTyping(channelID, discordgo.WithContext(ctx))
}

func (d *Delivery) Send(ctx context.Context, channelID, replyToID string, reply relay.Reply) (string, error) {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return "", fmt.Errorf("channel id is required")
	}
	data := &discordgo.MessageSend{
		AllowedMentions: &discordgo.MessageAllowedMentions{RepliedUser: !reply.Quiet},
	}
	if replyToID = strings.TrimSpace(replyToID); replyToID != "" {
		failIfNotExists := false
		data.Reference = &discordgo.MessageReference{
			MessageID:       replyToID,
			ChannelID:       channelID,
			FailIfNotExists: &failIfNotExists,
		}
	}
	if reply.Panel != nil {
		data.Embeds = []*discordgo.MessageEmbed{panelEmbed(*reply.Panel)}
		data.Components = components(reply.Panel.Controls)
	} else {
		text := outputfmt.Truncate(strings.TrimSpace(reply.Text), relay.MaxTextChars)
		if text == "" {
			return "", fmt.Errorf("reply is empty")
		}
		data.Content = text
	}
	sent, err := d.session.ChannelMessageSendComplex(channelID, data, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	if sent == nil {
		return "", nil
	}
	return sent.ID, nil
}

func (d *Delivery) Edit(ctx context.Context, channelID, messageID string, reply relay.Reply) (string, error) {
	edit := discordgo.NewMessageEdit(channelID, messageID)
	if reply.Panel != nil {
		edit.SetEmbeds([]*discordgo.MessageEmbed{panelEmbed(*reply.Panel)})
		if reply.Panel.Controls != nil {
			comps := components(reply.Panel.Controls)
			edit.Components = &comps
		}
	} else {
		edit.SetContent(outputfmt.Truncate(strings.TrimSpace(reply.Text), relay.MaxTextChars))
	}
	edited, err := d.session.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	if edited == nil {
		return messageID, nil
	}
	return edited.ID, nil
}

func (d *Delivery) Delete(ctx context.Context, channelID, messageID string) error {
	return d.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx))
}

func (d *Delivery) History(ctx context.Context, channelID, beforeID string, limit int) ([]relay.IncomingMessage, error) {
	if limit <= 0 {
		return nil, nil
	}
	if limit > relay.MaxHistoryFetch {
		limit = relay.MaxHistoryFetch
	}
	items, err := d.session.ChannelMessages(channelID, limit, beforeID, "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	parent := d.parentOf(ctx, channelID)
	out := make([]relay.IncomingMessage, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		out = append(out, InboundMessage(item, parent))
	}
	return out, nil
}

func (d *Delivery) Message(ctx context.Context, channelID, messageID string) (relay.IncomingMessage, error) {
	m, err := d.session.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		return relay.IncomingMessage{}, err
	}
	if m == nil {
		return relay.IncomingMessage{}, fmt.Errorf("message %s not found", messageID)
	}
	return InboundMessage(m, d.parentOf(ctx, channelID)), nil
}

func (d *Delivery) parentOf(ctx context.Context, channelID string) string {
	if d.parents == nil {
		return ""
	}
	return d.parents.ParentOf(ctx, channelID)
}

func panelEmbed(p relay.Panel) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Description: outputfmt.Truncate(p.Body, relay.MaxPanelBodyChars),
		Color:       p.Color,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	if footer := strings.TrimSpace(p.Footer); footer != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: outputfmt.Truncate(footer, relay.MaxFooterChars)}
	}
	return embed
}

func components(controls []relay.Control) []discordgo.MessageComponent {
	if len(controls) == 0 {
		return []discordgo.MessageComponent{}
	}
	buttons := make([]discordgo.MessageComponent, 0, len(controls))
	for _, control := range controls {
		buttons = append(buttons, discordgo.Button{
			Label:    control.Label,
			Style:    buttonStyle(control.Style),
			CustomID: control.CustomID,
		})
	}
	return []discordgo.MessageComponent{discordgo.ActionsRow{Components: buttons}}
}

func buttonStyle(style relay.ControlStyle) discordgo.ButtonStyle {
	switch style {
	case relay.ControlPositive:
		return discordgo.SuccessButton
	case relay.ControlNegative:
		return discordgo.DangerButton
	default:
		return discordgo.SecondaryButton
	}
}

// InteractionSession is the subset of *discordgo.Session used to answer
// component interactions.
type InteractionSession interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// InteractionResponder implements relay.Responder for one interaction.
type InteractionResponder struct {
	Session     InteractionSession
	Interaction *discordgo.Interaction
}

func (r InteractionResponder) RespondPrivate(ctx context.Context, text string) error {
	return r.Session.InteractionRespond(r.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: outputfmt.Truncate(text, relay.MaxTextChars),
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	}, discordgo.WithContext(ctx))
}

func (r InteractionResponder) DeferUpdate(ctx context.Context) error {
	return r.Session.InteractionRespond(r.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	}, discordgo.WithContext(ctx))
}

func (r InteractionResponder) FollowupPrivate(ctx context.Context, text string) error {
	_, err := r.Session.FollowupMessageCreate(r.Interaction, true, &discordgo.WebhookParams{
		Content: outputfmt.Truncate(text, relay.MaxTextChars),
		Flags:   discordgo.MessageFlagsEphemeral,
	}, discordgo.WithContext(ctx))
	return err
}

package relay

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/quailyquaily/kbrelay/internal/feedback"
	"github.com/quailyquaily/kbrelay/kb"
)

const (
	DefaultPlatformTimeout = 10 * time.Second
	DefaultPlaceholderText = "🤔 Thinking..."
)

type Outcome string

const (
	OutcomeIgnored    Outcome = "ignored"
	OutcomeEmptyQuery Outcome = "empty_query"
	OutcomeReplied    Outcome = "replied"
	OutcomeErrorReply Outcome = "error_reply"
	OutcomeSendFailed Outcome = "send_failed"
	OutcomePanicked   Outcome = "panicked"
)

// Observer receives pipeline events. Implementations must be safe for
// concurrent use.
type Observer interface {
	MessageHandled(outcome Outcome)
	AnswerReceived(res kb.Result, elapsed time.Duration)
	FeedbackAction(action string)
	LedgerSize(n int)
}

type Options struct {
	Platform Platform
	Client   kb.Client
	Ledger   *feedback.Ledger
	Renderer Renderer
	Observer Observer
	Logger   *slog.Logger

	MonitoredChannelID string
	BotUserID          string
	Model              string
	ContextMessages    int
	PlaceholderText    string
	PlatformTimeout    time.Duration
}

// Relay turns qualifying messages into knowledge base answers.
type Relay struct {
	platform        Platform
	client          kb.Client
	ledger          *feedback.Ledger
	renderer        Renderer
	observer        Observer
	logger          *slog.Logger
	qualifier       Qualifier
	sampler         Sampler
	model           string
	contextMessages int
	placeholderText string
	platformTimeout time.Duration
}

func New(opts Options) (*Relay, error) {
	if opts.Platform == nil {
		return nil, fmt.Errorf("platform is required")
	}
	if opts.Client == nil {
		return nil, fmt.Errorf("knowledge base client is required")
	}
	botUserID := strings.TrimSpace(opts.BotUserID)
	if botUserID == "" {
		return nil, fmt.Errorf("bot user id is required")
	}
	monitored := strings.TrimSpace(opts.MonitoredChannelID)
	if monitored == "" {
		return nil, fmt.Errorf("monitored channel id is required")
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	ledger := opts.Ledger
	if ledger == nil {
		var err error
		ledger, err = feedback.NewLedger(feedback.DefaultMaxEntries)
		if err != nil {
			return nil, err
		}
	}
	placeholder := strings.TrimSpace(opts.PlaceholderText)
	if placeholder == "" {
		placeholder = DefaultPlaceholderText
	}
	platformTimeout := opts.PlatformTimeout
	if platformTimeout <= 0 {
		platformTimeout = DefaultPlatformTimeout
	}
	return &Relay{
		platform: opts.Platform,
		client:   opts.Client,
		ledger:   ledger,
		renderer: opts.Renderer,
		observer: observer,
		logger:   logger,
		qualifier: Qualifier{
			MonitoredChannelID: monitored,
			BotUserID:          botUserID,
			Messages:           opts.Platform,
			Logger:             logger,
			FetchTimeout:       platformTimeout,
		},
		sampler: Sampler{
			Source:       opts.Platform,
			BotUserID:    botUserID,
			Logger:       logger,
			FetchTimeout: platformTimeout,
		},
		model:           model,
		contextMessages: opts.ContextMessages,
		placeholderText: placeholder,
		platformTimeout: platformTimeout,
	}, nil
}

func (r *Relay) Ledger() *feedback.Ledger {
	return r.ledger
}

// InScope is the cheap pre-check run on the event dispatch path.
func (r *Relay) InScope(msg IncomingMessage) bool {
	return r.qualifier.InScope(msg)
}

// HandleMessage qualifies msg and, when it addresses the bot, processes it.
func (r *Relay) HandleMessage(ctx context.Context, msg IncomingMessage) Outcome {
	if !r.qualifier.Qualifies(ctx, msg) {
		r.observer.MessageHandled(OutcomeIgnored)
		return OutcomeIgnored
	}
	return r.ProcessMessage(ctx, msg)
}

// ProcessMessage runs the reply lifecycle for a qualified message. The
// placeholder is removed on every exit path and the user always receives
// either an answer or an error text, unless the query is empty.
func (r *Relay) ProcessMessage(ctx context.Context, msg IncomingMessage) (outcome Outcome) {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := r.logger.With("channel_id", msg.ChannelID, "message_id", msg.ID, "author_id", msg.AuthorID)

	r.showTyping(ctx, msg.ChannelID, logger)
	placeholderID := r.postPlaceholder(ctx, msg, logger)
	replied := false
	cleanup := func() {
		if placeholderID == "" {
			return
		}
		r.deleteMessage(ctx, msg.ChannelID, placeholderID, logger)
		placeholderID = ""
	}
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("relay_panic", "panic", fmt.Sprint(rec))
			cleanup()
			if !replied {
				r.sendBestEffort(ctx, msg, TextUnexpected, logger)
			}
			outcome = OutcomePanicked
		}
		cleanup()
		r.observer.MessageHandled(outcome)
	}()

	query := StripMentions(msg.Content, r.qualifier.BotUserID)
	if query == "" {
		cleanup()
		logger.Info("relay_empty_query")
		return OutcomeEmptyQuery
	}

	history := r.sampler.Sample(ctx, msg.ChannelID, msg.ID, r.contextMessages)
	req := kb.BuildRequest(r.model, history, query)
	logger.Debug("relay_request", "context_messages", len(history), "query_chars", len(query))

	started := time.Now()
	res := r.client.Send(ctx, req)
	elapsed := time.Since(started)
	r.observer.AnswerReceived(res, elapsed)
	cleanup()

	if !res.OK() {
		logger.Warn("relay_api_error",
			"kind", string(res.Failure.Kind),
			"status", res.Failure.StatusCode,
			"detail", res.Failure.Detail,
			"elapsed", elapsed.String(),
		)
	} else {
		logger.Info("relay_answer", "empty", res.Empty, "chars", len(res.Text), "elapsed", elapsed.String())
	}

	reply := r.renderer.Render(res, msg.ID)
	sendCtx, cancel := boundedContext(ctx, r.platformTimeout)
	replyID, err := r.platform.Send(sendCtx, msg.ChannelID, msg.ID, reply)
	cancel()
	if err != nil {
		logger.Warn("relay_send_error", "error", err.Error())
		r.sendBestEffort(ctx, msg, TextUnexpected, logger)
		replied = true
		return OutcomeSendFailed
	}
	replied = true

	if reply.Panel != nil && len(reply.Panel.Controls) > 0 && replyID != "" {
		r.ledger.Record(replyID, feedback.Entry{
			Request:         req,
			SourceMessageID: msg.ID,
			ChannelID:       msg.ChannelID,
		})
		r.observer.LedgerSize(r.ledger.Len())
	}
	if !res.OK() {
		return OutcomeErrorReply
	}
	return OutcomeReplied
}

func (r *Relay) showTyping(ctx context.Context, channelID string, logger *slog.Logger) {
	typingCtx, cancel := boundedContext(ctx, r.platformTimeout)
	defer cancel()
	if err := r.platform.Typing(typingCtx, channelID); err != nil {
		logger.Debug("relay_typing_error", "error", err.Error())
	}
}

func (r *Relay) postPlaceholder(ctx context.Context, msg IncomingMessage, logger *slog.Logger) string {
	postCtx, cancel := boundedContext(ctx, r.platformTimeout)
	defer cancel()
	id, err := r.platform.Send(postCtx, msg.ChannelID, msg.ID, Reply{Text: r.placeholderText, Quiet: true})
	if err != nil {
		logger.Warn("relay_placeholder_post_error", "error", err.Error())
		return ""
	}
	return id
}

// deleteMessage runs under its own deadline so a canceled request context
// does not leave the placeholder behind.
func (r *Relay) deleteMessage(ctx context.Context, channelID, messageID string, logger *slog.Logger) {
	deleteCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.platformTimeout)
	defer cancel()
	if err := r.platform.Delete(deleteCtx, channelID, messageID); err != nil {
		logger.Warn("relay_placeholder_delete_error", "placeholder_id", messageID, "error", err.Error())
	}
}

func (r *Relay) sendBestEffort(ctx context.Context, msg IncomingMessage, text string, logger *slog.Logger) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.platformTimeout)
	defer cancel()
	if _, err := r.platform.Send(sendCtx, msg.ChannelID, msg.ID, Reply{Text: text}); err != nil {
		logger.Debug("relay_error_notice_failed", "error", err.Error())
	}
}

type nopObserver struct{}

func (nopObserver) MessageHandled(Outcome) {}
func (nopObserver) AnswerReceived(kb.Result, time.Duration) {}
func (nopObserver) FeedbackAction(string) {}
func (nopObserver) LedgerSize(int) {}

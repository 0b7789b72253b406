package relay

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/quailyquaily/kbrelay/internal/feedback"
)

const (
	TextFeedbackThanks     = "Thanks for your feedback!"
	TextContextMissing     = "Sorry, I couldn't find the original context for this answer. Please ask again."
	TextUnknownAction      = "Sorry, I don't recognize that action."
	TextRegenerateFailed   = "Sorry, I couldn't regenerate the answer. The original answer was kept."
	TextRegenerateNotFound = "Sorry, the answer to regenerate is no longer available."
)

// FeedbackEvent is a control activation on a reply panel.
type FeedbackEvent struct {
	CustomID  string
	ChannelID string
	MessageID string
	UserID    string
}

// HandleFeedback answers a control activation. It always responds to the
// actor, either privately or by deferring an in-place update.
func (r *Relay) HandleFeedback(ctx context.Context, ev FeedbackEvent, responder Responder) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := r.logger.With("channel_id", ev.ChannelID, "reply_id", ev.MessageID, "user_id", ev.UserID)
	action, sourceMessageID, ok := ParseFeedbackID(ev.CustomID)
	if !ok {
		logger.Debug("feedback_ignored", "custom_id", ev.CustomID)
		return nil
	}
	logger = logger.With("action", action, "source_message_id", sourceMessageID)
	r.observer.FeedbackAction(action)

	switch action {
	case ActionPositive, ActionNegative:
		logger.Info("feedback_received")
		return r.respondPrivate(ctx, responder, TextFeedbackThanks)
	case ActionRegenerate:
		return r.regenerate(ctx, ev, responder, logger)
	default:
		logger.Warn("feedback_unknown_action")
		return r.respondPrivate(ctx, responder, TextUnknownAction)
	}
}

func (r *Relay) regenerate(ctx context.Context, ev FeedbackEvent, responder Responder, logger *slog.Logger) error {
	entry, err := r.ledger.Lookup(ev.MessageID)
	if err != nil {
		if errors.Is(err, feedback.ErrContextMissing) {
			logger.Warn("feedback_context_missing")
		}
		return r.respondPrivate(ctx, responder, TextContextMissing)
	}

	deferCtx, cancel := boundedContext(ctx, r.platformTimeout)
	err = responder.DeferUpdate(deferCtx)
	cancel()
	if err != nil {
		logger.Warn("feedback_defer_error", "error", err.Error())
		return err
	}

	started := time.Now()
	res := r.client.Send(ctx, entry.Request)
	r.observer.AnswerReceived(res, time.Since(started))
	if !res.OK() {
		logger.Warn("feedback_regenerate_api_error", "kind", string(res.Failure.Kind), "status", res.Failure.StatusCode)
		return r.followupPrivate(ctx, responder, FailureText(res.Failure, r.renderer.TimeoutSeconds))
	}
	if res.Empty {
		logger.Info("feedback_regenerate_empty")
		return r.followupPrivate(ctx, responder, TextRegenerateFailed)
	}

	reply := r.renderer.Render(res, entry.SourceMessageID)
	if reply.Panel == nil {
		return r.followupPrivate(ctx, responder, TextRegenerateFailed)
	}
	// Keep the controls already attached to the panel.
	reply.Panel.Controls = nil

	editCtx, cancel := boundedContext(ctx, r.platformTimeout)
	editedID, err := r.platform.Edit(editCtx, ev.ChannelID, ev.MessageID, reply)
	cancel()
	if err != nil {
		logger.Warn("feedback_regenerate_edit_error", "error", err.Error())
		return r.followupPrivate(ctx, responder, TextRegenerateNotFound)
	}
	if entry.Fingerprint == "" {
		entry.Fingerprint = feedback.Fingerprint(entry.Request)
	}
	if strings.TrimSpace(editedID) == strings.TrimSpace(ev.MessageID) {
		entry.RecordedAt = time.Time{}
		r.ledger.Record(ev.MessageID, entry)
	}
	logger.Info("feedback_regenerated", "fingerprint", entry.Fingerprint, "chars", len(res.Text))
	return nil
}

func (r *Relay) respondPrivate(ctx context.Context, responder Responder, text string) error {
	respondCtx, cancel := boundedContext(ctx, r.platformTimeout)
	defer cancel()
	if err := responder.RespondPrivate(respondCtx, text); err != nil {
		r.logger.Warn("feedback_respond_error", "error", err.Error())
		return err
	}
	return nil
}

func (r *Relay) followupPrivate(ctx context.Context, responder Responder, text string) error {
	followCtx, cancel := boundedContext(ctx, r.platformTimeout)
	defer cancel()
	if err := responder.FollowupPrivate(followCtx, text); err != nil {
		r.logger.Warn("feedback_followup_error", "error", err.Error())
		return err
	}
	return nil
}

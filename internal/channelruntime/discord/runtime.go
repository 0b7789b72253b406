package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/quailyquaily/kbrelay/internal/channelruntime/worker"
	"github.com/quailyquaily/kbrelay/internal/daemonruntime"
	"github.com/quailyquaily/kbrelay/internal/relay"
)

const (
	defaultMaxConcurrency = 4
	defaultDrainTimeout   = 30 * time.Second
	relayIntents          = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent
)

// QueueObserver is told when jobs enter and leave the queue.
type QueueObserver interface {
	TaskQueued()
	TaskDequeued()
}

// RelayFactory builds the relay once the bot identity is known.
type RelayFactory func(platform relay.Platform, botUserID string) (*relay.Relay, error)

type RunOptions struct {
	Token          string
	Logger         *slog.Logger
	MaxConcurrency int
	DrainTimeout   time.Duration
	Tasks          *daemonruntime.MemoryStore
	Queue          QueueObserver
	NewRelay       RelayFactory
	// OnReady runs after the session is open and the relay is built.
	OnReady func(r *relay.Relay, botUserID string)
}

type messageJob struct {
	TaskID string
	Msg    relay.IncomingMessage
}

// Run connects to the gateway and relays messages until ctx is done.
func Run(ctx context.Context, opts RunOptions) error {
	token := strings.TrimSpace(opts.Token)
	if token == "" {
		return fmt.Errorf("discord token is required")
	}
	if opts.NewRelay == nil {
		return fmt.Errorf("relay factory is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = relayIntents
	if err := session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("discord_session_close_error", "error", err.Error())
		}
	}()
	if session.State == nil || session.State.User == nil {
		return fmt.Errorf("discord session has no bot identity")
	}
	botUserID := session.State.User.ID

	parents := &ParentResolver{State: session.State, Lookup: session, Timeout: relay.DefaultPlatformTimeout}
	delivery, err := NewDelivery(DeliveryOptions{Session: session, Parents: parents})
	if err != nil {
		return err
	}
	rel, err := opts.NewRelay(delivery, botUserID)
	if err != nil {
		return err
	}

	workersCtx, cancelWorkers := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWorkers()
	d := newDispatcher(workersCtx, dispatcherOptions{
		Relay:          rel,
		Parents:        parents,
		Tasks:          opts.Tasks,
		Queue:          opts.Queue,
		Logger:         logger,
		MaxConcurrency: opts.MaxConcurrency,
	})

	removeMessage := session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		if ctx.Err() != nil || m == nil || m.Message == nil {
			return
		}
		d.OnMessage(ctx, m.Message)
	})
	removeInteraction := session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		if ctx.Err() != nil || i == nil || i.Interaction == nil {
			return
		}
		d.OnInteraction(ctx, i.Interaction, InteractionResponder{Session: s, Interaction: i.Interaction})
	})

	if opts.OnReady != nil {
		opts.OnReady(rel, botUserID)
	}
	logger.Info("discord_start",
		"bot_user_id", botUserID,
		"max_concurrency", d.maxConcurrency,
	)

	<-ctx.Done()
	removeMessage()
	removeInteraction()

	drain := opts.DrainTimeout
	if drain <= 0 {
		drain = defaultDrainTimeout
	}
	drainCtx, cancel := context.WithTimeout(context.Background(), drain)
	defer cancel()
	if err := d.Close(drainCtx); err != nil {
		logger.Warn("discord_drain_timeout", "error", err.Error())
	}
	logger.Info("discord_stop", "reason", "context_canceled")
	return nil
}

type dispatcherOptions struct {
	Relay          *relay.Relay
	Parents        *ParentResolver
	Tasks          *daemonruntime.MemoryStore
	Queue          QueueObserver
	Logger         *slog.Logger
	MaxConcurrency int
}

// dispatcher turns gateway events into pool jobs.
type dispatcher struct {
	relay          *relay.Relay
	parents        *ParentResolver
	tasks          *daemonruntime.MemoryStore
	queue          QueueObserver
	logger         *slog.Logger
	maxConcurrency int
	pool           *worker.Pool[messageJob]
}

func newDispatcher(ctx context.Context, opts dispatcherOptions) *dispatcher {
	maxConc := opts.MaxConcurrency
	if maxConc <= 0 {
		maxConc = defaultMaxConcurrency
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	d := &dispatcher{
		relay:          opts.Relay,
		parents:        opts.Parents,
		tasks:          opts.Tasks,
		queue:          opts.Queue,
		logger:         logger,
		maxConcurrency: maxConc,
	}
	d.pool = worker.NewPool(ctx, maxConc, worker.DefaultQueueSize, d.runJob)
	return d
}

func (d *dispatcher) OnMessage(ctx context.Context, m *discordgo.Message) {
	parent := ""
	if d.parents != nil {
		parent = d.parents.ParentOf(ctx, m.ChannelID)
	}
	msg := InboundMessage(m, parent)
	d.Submit(ctx, msg)
}

// Submit queues an in-scope message on its channel's worker.
func (d *dispatcher) Submit(ctx context.Context, msg relay.IncomingMessage) {
	if !d.relay.InScope(msg) {
		return
	}
	taskID := d.tasks.Enqueue(daemonruntime.TaskKindMessage, msg.ChannelID, msg.ID, msg.AuthorID, msg.Content)
	if d.queue != nil {
		d.queue.TaskQueued()
	}
	if err := d.pool.Submit(ctx, msg.ChannelID, messageJob{TaskID: taskID, Msg: msg}); err != nil {
		if d.queue != nil {
			d.queue.TaskDequeued()
		}
		d.tasks.MarkFinished(taskID, daemonruntime.TaskFailed, "", err)
		d.logger.Warn("discord_enqueue_error", "channel_id", msg.ChannelID, "message_id", msg.ID, "error", err.Error())
	}
}

func (d *dispatcher) runJob(ctx context.Context, job messageJob) {
	if d.queue != nil {
		d.queue.TaskDequeued()
	}
	d.tasks.MarkRunning(job.TaskID)
	outcome := d.relay.HandleMessage(ctx, job.Msg)
	d.tasks.MarkFinished(job.TaskID, taskStatusFor(outcome), string(outcome), nil)
}

// OnInteraction answers feedback controls on the event goroutine; the
// platform expects an acknowledgment within a few seconds, so these do not
// wait behind queued messages.
func (d *dispatcher) OnInteraction(ctx context.Context, i *discordgo.Interaction, responder relay.Responder) {
	ev, ok := FeedbackEventFromInteraction(i)
	if !ok || !strings.HasPrefix(ev.CustomID, relay.FeedbackPrefix) {
		return
	}
	taskID := d.tasks.Enqueue(daemonruntime.TaskKindFeedback, ev.ChannelID, ev.MessageID, ev.UserID, ev.CustomID)
	d.tasks.MarkRunning(taskID)
	if err := d.relay.HandleFeedback(ctx, ev, responder); err != nil {
		d.tasks.MarkFinished(taskID, daemonruntime.TaskFailed, "", err)
		return
	}
	d.tasks.MarkFinished(taskID, daemonruntime.TaskDone, "", nil)
}

func (d *dispatcher) Workers() int {
	return d.pool.Size()
}

func (d *dispatcher) Close(ctx context.Context) error {
	return d.pool.Close(ctx)
}

func taskStatusFor(outcome relay.Outcome) daemonruntime.TaskStatus {
	switch outcome {
	case relay.OutcomeIgnored:
		return daemonruntime.TaskIgnored
	case relay.OutcomeReplied, relay.OutcomeEmptyQuery:
		return daemonruntime.TaskDone
	default:
		return daemonruntime.TaskFailed
	}
}

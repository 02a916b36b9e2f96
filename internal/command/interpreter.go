package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/groupcast/groupcast/internal/chat"
	"github.com/groupcast/groupcast/internal/delivery"
	"github.com/groupcast/groupcast/internal/store"
)

var tracer = otel.Tracer("github.com/groupcast/groupcast/internal/command")

// Settings are the interpreter knobs that can change while running.
type Settings struct {
	BatchSize      int
	Pacing         delivery.Pacing
	AllowBroadcast bool
	RedirectReply  string
}

// DefaultSettings returns the shipped defaults.
func DefaultSettings() Settings {
	return Settings{
		BatchSize:      delivery.DefaultBatchSize,
		Pacing:         delivery.DefaultPacing(),
		AllowBroadcast: true,
		RedirectReply:  DefaultRedirectReply,
	}
}

// Throttle decides whether a sender may run another command now.
type Throttle interface {
	Allow(key string) bool
}

// Recorder persists one audit record per executed command.
type Recorder interface {
	Record(ctx context.Context, rec *store.CommandRecord) error
}

// Interpreter classifies inbound messages and executes commands against a
// messaging client. Safe for concurrent use; each Handle call runs its own
// sends sequentially.
type Interpreter struct {
	client   chat.Client
	settings atomic.Pointer[Settings]
	throttle Throttle
	recorder Recorder
	int64n   func(n int64) int64
	sleep    delivery.SleepFunc
	now      func() time.Time
	log      *slog.Logger
}

// Option configures an Interpreter.
type Option func(*Interpreter)

func WithThrottle(t Throttle) Option { return func(in *Interpreter) { in.throttle = t } }

func WithRecorder(r Recorder) Option { return func(in *Interpreter) { in.recorder = r } }

func WithLogger(l *slog.Logger) Option { return func(in *Interpreter) { in.log = l } }

// WithRand replaces the uniform source used by raffles and number draws.
// int64n must return a value in [0, n).
func WithRand(int64n func(n int64) int64) Option {
	return func(in *Interpreter) { in.int64n = int64n }
}

// WithSleep replaces the pacing wait.
func WithSleep(fn delivery.SleepFunc) Option { return func(in *Interpreter) { in.sleep = fn } }

func New(client chat.Client, s Settings, opts ...Option) *Interpreter {
	in := &Interpreter{
		client: client,
		int64n: rand.Int64N,
		now:    time.Now,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(in)
	}
	in.SetSettings(s)
	return in
}

// SetSettings swaps the settings used by subsequent commands.
func (in *Interpreter) SetSettings(s Settings) {
	if s.RedirectReply == "" {
		s.RedirectReply = DefaultRedirectReply
	}
	in.settings.Store(&s)
}

func (in *Interpreter) Settings() Settings {
	return *in.settings.Load()
}

type result struct {
	targets int
	sent    int
	failed  int
}

// Handle processes one inbound message. Direct messages get the redirect
// reply; unrecognized group text is ignored. Errors and panics are logged
// and turned into replies, never propagated.
func (in *Interpreter) Handle(ctx context.Context, msg chat.Message) {
	s := in.Settings()

	if !msg.IsGroup {
		in.reply(ctx, msg, s.RedirectReply)
		return
	}

	cmd, perr := Parse(msg.Body, msg.Mentions)
	if cmd.Kind == KindNone {
		return
	}

	if in.throttle != nil && !in.throttle.Allow(msg.ChatID+"|"+msg.SenderID) {
		in.log.Debug("command throttled", "kind", cmd.Kind.String(), "chat_id", msg.ChatID, "sender_id", msg.SenderID)
		return
	}

	in.run(ctx, s, msg, cmd, perr)
}

func (in *Interpreter) run(ctx context.Context, s Settings, msg chat.Message, cmd Command, perr error) {
	started := in.now()
	ctx, span := tracer.Start(ctx, "command."+cmd.Kind.String(), trace.WithAttributes(
		attribute.String("chat.id", msg.ChatID),
		attribute.String("sender.id", msg.SenderID),
	))
	defer span.End()

	res, err := in.safeExecute(ctx, s, msg, cmd, perr)
	outcome := outcomeOf(err)
	span.SetAttributes(
		attribute.String("command.outcome", string(outcome)),
		attribute.Int("command.targets", res.targets),
	)

	attrs := []any{
		"kind", cmd.Kind.String(),
		"chat_id", msg.ChatID,
		"sender_id", msg.SenderID,
		"outcome", outcome,
		"targets", res.targets,
		"sent", res.sent,
		"failed", res.failed,
		"duration", in.now().Sub(started),
	}
	switch outcome {
	case store.OutcomeOK:
		in.log.Info("command handled", attrs...)
	case store.OutcomeFailed:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		in.log.Error("command failed", append(attrs, "error", err)...)
	default:
		in.log.Info("command rejected", append(attrs, "error", err)...)
	}

	if err != nil && ctx.Err() == nil {
		in.reply(ctx, msg, replyFor(err))
	}

	in.record(ctx, msg, cmd, res, outcome, err, started)
}

func (in *Interpreter) safeExecute(ctx context.Context, s Settings, msg chat.Message, cmd Command, perr error) (res result, err error) {
	defer func() {
		if r := recover(); r != nil {
			in.log.Error("command panicked", "kind", cmd.Kind.String(), "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return in.execute(ctx, s, msg, cmd, perr)
}

func (in *Interpreter) execute(ctx context.Context, s Settings, msg chat.Message, cmd Command, perr error) (result, error) {
	if cmd.Kind == KindHelp {
		if err := in.send(ctx, msg, helpText(s.BatchSize, s.AllowBroadcast)); err != nil {
			return result{}, fmt.Errorf("send help: %w", err)
		}
		return result{}, nil
	}

	conv, err := in.client.GetChat(ctx, msg.ChatID)
	if err != nil {
		return result{}, fmt.Errorf("get chat %s: %w", msg.ChatID, err)
	}
	if cmd.Kind.RequiresAdmin() && !conv.IsAdmin(msg.SenderID) {
		return result{}, ErrNotAuthorized
	}
	if perr != nil {
		return result{}, perr
	}

	switch cmd.Kind {
	case KindMarkAll:
		return in.mentionAll(ctx, s, conv, markAllHeader)
	case KindAnnounce:
		if cmd.Broadcast && !s.AllowBroadcast {
			cmd.Broadcast = false
			cmd.Text = cmd.Payload
		}
		if cmd.Broadcast {
			return in.broadcast(ctx, s, msg, conv, cmd.Text)
		}
		res, err := in.mentionAll(ctx, s, conv, fmt.Sprintf(announceGroupFmt, cmd.Text))
		if err != nil {
			return res, err
		}
		in.reply(ctx, msg, fmt.Sprintf(announceSentFmt, res.sent))
		return res, nil
	case KindRaffle:
		return in.raffle(ctx, msg, conv)
	case KindRandomNumber:
		n := int64(cmd.Min) + in.int64n(int64(cmd.Max)-int64(cmd.Min)+1)
		if err := in.send(ctx, msg, fmt.Sprintf(randomNumberFmt, cmd.Min, cmd.Max, n)); err != nil {
			return result{}, fmt.Errorf("send draw: %w", err)
		}
		return result{}, nil
	case KindRemoveParticipant:
		if err := in.client.RemoveParticipants(ctx, conv.ID, []string{cmd.Target}); err != nil {
			return result{targets: 1}, fmt.Errorf("%w: %w", ErrRemoval, err)
		}
		in.reply(ctx, msg, replyRemoved)
		return result{targets: 1, sent: 1}, nil
	default:
		return result{}, fmt.Errorf("unhandled command kind %s", cmd.Kind)
	}
}

// mentionAll posts header to the group, then every resolved participant in
// mention batches.
func (in *Interpreter) mentionAll(ctx context.Context, s Settings, conv *chat.Conversation, header string) (result, error) {
	targets := delivery.Targets(ctx, in.client, conv.Participants, in.log)
	res := result{targets: len(targets)}
	if len(targets) == 0 {
		return res, ErrNoParticipants
	}

	batches, err := delivery.Batch(targets, s.BatchSize)
	if err != nil {
		return res, err
	}

	if err := in.client.SendMessage(ctx, conv.ID, header, chat.SendOptions{}); err != nil {
		return res, fmt.Errorf("%w: header: %w", ErrDelivery, err)
	}

	err = in.pacer(s).RunBatches(ctx, len(batches), func(ctx context.Context, i int) error {
		batch := batches[i]
		err := in.client.SendMessage(ctx, conv.ID, mentionText(batch), chat.SendOptions{
			Mentions: contactIDs(batch),
		})
		if err != nil {
			return err
		}
		res.sent += len(batch)
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return res, err
		}
		return res, fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	return res, nil
}

// broadcast sends text to every resolved participant as a direct message.
func (in *Interpreter) broadcast(ctx context.Context, s Settings, msg chat.Message, conv *chat.Conversation, text string) (result, error) {
	targets := delivery.Targets(ctx, in.client, conv.Participants, in.log)
	res := result{targets: len(targets)}
	if len(targets) == 0 {
		return res, ErrNoParticipants
	}

	in.reply(ctx, msg, fmt.Sprintf(broadcastStartFmt, len(targets)))

	body := fmt.Sprintf(announceDirectFmt, text)
	rep, err := in.pacer(s).RunDirect(ctx, len(targets), func(ctx context.Context, i int) error {
		return in.client.SendMessage(ctx, targets[i].ID, body, chat.SendOptions{})
	})
	res.sent, res.failed = rep.Sent, rep.Failed
	if err != nil {
		return res, err
	}

	in.reply(ctx, msg, fmt.Sprintf(broadcastDoneFmt, rep.Sent, rep.Failed))
	return res, nil
}

// raffle draws one participant, preferring non-admins.
func (in *Interpreter) raffle(ctx context.Context, msg chat.Message, conv *chat.Conversation) (result, error) {
	pool := lo.Filter(conv.Participants, func(p chat.Participant, _ int) bool {
		return !p.IsAdmin
	})
	if len(pool) == 0 {
		pool = conv.Participants
	}
	if len(pool) == 0 {
		return result{}, ErrNoParticipants
	}

	winner := pool[in.int64n(int64(len(pool)))]
	contact, err := in.client.GetContactByID(ctx, winner.ID)
	if err != nil {
		return result{targets: len(pool)}, fmt.Errorf("resolve winner %s: %w", winner.ID, err)
	}

	err = in.client.SendMessage(ctx, msg.ChatID, fmt.Sprintf(raffleWinnerFmt, contact.Mention()), chat.SendOptions{
		Mentions:        []string{contact.ID},
		QuotedMessageID: msg.ID,
	})
	if err != nil {
		return result{targets: len(pool)}, fmt.Errorf("send raffle result: %w", err)
	}
	return result{targets: len(pool), sent: 1}, nil
}

func (in *Interpreter) pacer(s Settings) *delivery.Pacer {
	p := delivery.NewPacer(s.Pacing, in.log)
	if in.sleep != nil {
		p.WithSleep(in.sleep)
	}
	return p
}

// send replies to msg, quoting it.
func (in *Interpreter) send(ctx context.Context, msg chat.Message, text string) error {
	return in.client.SendMessage(ctx, msg.ChatID, text, chat.SendOptions{QuotedMessageID: msg.ID})
}

// reply is send for best-effort notices: failures are only logged.
func (in *Interpreter) reply(ctx context.Context, msg chat.Message, text string) {
	if err := in.send(ctx, msg, text); err != nil {
		in.log.Warn("reply failed", "chat_id", msg.ChatID, "error", err)
	}
}

func (in *Interpreter) record(ctx context.Context, msg chat.Message, cmd Command, res result, outcome store.Outcome, err error, started time.Time) {
	if in.recorder == nil {
		return
	}
	rec := &store.CommandRecord{
		ChatID:     msg.ChatID,
		SenderID:   msg.SenderID,
		Kind:       cmd.Kind.String(),
		Outcome:    outcome,
		Targets:    res.targets,
		Sent:       res.sent,
		Failed:     res.failed,
		StartedAt:  started,
		FinishedAt: in.now(),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	if rerr := in.recorder.Record(context.WithoutCancel(ctx), rec); rerr != nil {
		in.log.Warn("audit record failed", "kind", rec.Kind, "error", rerr)
	}
}

func outcomeOf(err error) store.Outcome {
	var verr *ValidationError
	switch {
	case err == nil:
		return store.OutcomeOK
	case errors.Is(err, ErrNotAuthorized):
		return store.OutcomeUnauthorized
	case errors.As(err, &verr):
		return store.OutcomeInvalid
	case errors.Is(err, ErrNoParticipants):
		return store.OutcomeNoParticipants
	default:
		return store.OutcomeFailed
	}
}

func mentionText(batch []chat.Contact) string {
	parts := make([]string, len(batch))
	for i, c := range batch {
		parts[i] = c.Mention()
	}
	return strings.Join(parts, " ")
}

func contactIDs(batch []chat.Contact) []string {
	return lo.Map(batch, func(c chat.Contact, _ int) string { return c.ID })
}

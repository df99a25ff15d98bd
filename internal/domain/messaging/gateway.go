// Package messaging connects the WhatsApp channel to the intake service.
// Inbound messages are acknowledged immediately and processed in the
// background, one payload at a time per delivery.
package messaging

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/intake/internal/domain/intake"
	"github.com/ehr/intake/internal/platform/whatsapp"
)

const (
	nonTextReply = "Sorry, I can only read typed messages. Please type your answer."
	failureReply = "Sorry, something went wrong on our side. Please send your last message again."
)

// TurnHandler runs one interview turn.
type TurnHandler interface {
	HandleTurn(ctx context.Context, patientID, text string) (*intake.TurnResult, error)
}

// Sender delivers outbound messages.
type Sender interface {
	SendText(ctx context.Context, to, body string) error
	MarkRead(ctx context.Context, messageID string) error
}

// Deduper remembers inbound message ids. Mark reports whether key was new.
type Deduper interface {
	Mark(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

type Options struct {
	// ReplyCooldown suppresses a second reply to the same patient inside
	// this window.
	ReplyCooldown time.Duration
	// TurnTimeout bounds the background processing of one message.
	TurnTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.ReplyCooldown < 0 {
		o.ReplyCooldown = 0
	}
	if o.TurnTimeout <= 0 {
		o.TurnTimeout = 2 * time.Minute
	}
	return o
}

type Gateway struct {
	turns  TurnHandler
	sender Sender
	dedup  Deduper
	opts   Options
	now    func() time.Time
	logger zerolog.Logger

	mu        sync.Mutex
	lastReply map[string]time.Time
	wg        sync.WaitGroup
}

func NewGateway(turns TurnHandler, sender Sender, dedup Deduper, opts Options, logger zerolog.Logger) *Gateway {
	return &Gateway{
		turns:     turns,
		sender:    sender,
		dedup:     dedup,
		opts:      opts.withDefaults(),
		now:       time.Now,
		logger:    logger.With().Str("component", "messaging").Logger(),
		lastReply: make(map[string]time.Time),
	}
}

// Dispatch processes msgs in order on a background goroutine detached from
// ctx's cancellation.
func (g *Gateway) Dispatch(ctx context.Context, msgs []whatsapp.Message) {
	if len(msgs) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		for _, m := range msgs {
			mctx, cancel := context.WithTimeout(ctx, g.opts.TurnTimeout)
			g.Process(mctx, m)
			cancel()
		}
	}()
}

// Wait blocks until every dispatched message is processed or ctx is done.
func (g *Gateway) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Process handles a single inbound message synchronously.
func (g *Gateway) Process(ctx context.Context, m whatsapp.Message) {
	log := g.logger.With().Str("patient_id", m.From).Str("message_id", m.ID).Logger()

	if m.ID != "" {
		fresh, err := g.dedup.Mark(ctx, m.ID)
		if err != nil {
			log.Warn().Err(err).Msg("dedup unavailable, processing message")
		} else if !fresh {
			log.Debug().Msg("duplicate delivery ignored")
			return
		}
		if err := g.sender.MarkRead(ctx, m.ID); err != nil {
			log.Warn().Err(err).Msg("mark read failed")
		}
	}

	if m.Type != whatsapp.MessageTypeText || m.Text == nil || strings.TrimSpace(m.Text.Body) == "" {
		log.Info().Str("type", m.Type).Msg("non-text message")
		g.reply(ctx, log, m.From, nonTextReply)
		return
	}

	start := g.now()
	res, err := g.turns.HandleTurn(ctx, m.From, m.Text.Body)
	if err != nil {
		g.forget(ctx, log, m.ID)
		var perr *intake.PersistenceError
		if errors.As(err, &perr) {
			// The webhook is already acknowledged, so the patient has to
			// resend; the same text retries only the save.
			log.Error().Err(err).Msg("turn not persisted, asking patient to resend")
		} else {
			log.Error().Err(err).Msg("turn failed")
		}
		g.reply(ctx, log, m.From, failureReply)
		return
	}

	log.Info().
		Str("phase", string(res.Phase)).
		Int("visit_number", res.VisitNumber).
		Str("terminal_action", string(res.TerminalAction)).
		Dur("latency", g.now().Sub(start)).
		Msg("turn completed")
	g.reply(ctx, log, m.From, res.Text)
}

func (g *Gateway) reply(ctx context.Context, log zerolog.Logger, to, text string) {
	if !g.claimReply(to) {
		log.Warn().Dur("cooldown", g.opts.ReplyCooldown).Msg("reply suppressed inside cooldown")
		return
	}
	if err := g.sender.SendText(ctx, to, text); err != nil {
		log.Error().Err(err).Msg("send reply failed")
	}
}

// claimReply records a reply to patient unless one went out within the
// cooldown window.
func (g *Gateway) claimReply(patient string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if last, ok := g.lastReply[patient]; ok && now.Sub(last) < g.opts.ReplyCooldown {
		return false
	}
	g.lastReply[patient] = now
	for p, t := range g.lastReply {
		if now.Sub(t) >= g.opts.ReplyCooldown && p != patient {
			delete(g.lastReply, p)
		}
	}
	return true
}

func (g *Gateway) forget(ctx context.Context, log zerolog.Logger, id string) {
	if id == "" {
		return
	}
	if err := g.dedup.Forget(ctx, id); err != nil {
		log.Warn().Err(err).Msg("dedup forget failed")
	}
}

package notify

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	"shopwatch/internal/retry"
	"shopwatch/internal/transport"
	logx "shopwatch/pkg/logx"
)

const defaultMessageRate = 1.0

// DeliverConfig targets the digest channel and the responsible group for
// escalation alerts. Responsible may be zero; escalations are then logged
// and dropped.
type DeliverConfig struct {
	Digest      transport.ChatTarget
	Responsible transport.ChatTarget
	ParseMode   string
	MessageRate float64
	Retry       retry.Policy
}

// Deliverer sends digest chunks strictly in order, each as an independent
// retried send. A chunk that still fails after its retry budget aborts the
// remaining chunks. The escalation alert goes out last, once all chunks made
// it through.
type Deliverer struct {
	sender  transport.Sender
	cfg     DeliverConfig
	limiter *rate.Limiter
	log     logx.Logger
}

func NewDeliverer(sender transport.Sender, cfg DeliverConfig, log logx.Logger) (*Deliverer, error) {
	if sender == nil {
		return nil, errors.New("notify: sender is nil")
	}
	if cfg.Digest.ChatID == 0 {
		return nil, errors.New("notify: digest chat id is not configured")
	}
	if cfg.MessageRate <= 0 {
		cfg.MessageRate = defaultMessageRate
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Deliverer{
		sender:  sender,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.MessageRate), 1),
		log:     log,
	}, nil
}

// Deliver sends every chunk of the digest, then the escalation alert when
// flagged. All sends target the digest channel except the alert, which goes
// to the responsible group.
func (d *Deliverer) Deliver(ctx context.Context, dg *Digest) error {
	if dg == nil {
		return errors.New("notify: nil digest")
	}
	total := len(dg.Chunks)
	for i, chunk := range dg.Chunks {
		op := fmt.Sprintf("notify.chunk %d/%d", i+1, total)
		if err := d.send(ctx, op, d.cfg.Digest, ChunkText(chunk)); err != nil {
			return fmt.Errorf("deliver chunk %d/%d: %w", i+1, total, err)
		}
		d.log.Debug("digest chunk delivered",
			logx.Int("chunk", i+1),
			logx.Int("total", total),
			logx.Int("blocks", len(chunk)),
		)
	}

	if !dg.Escalate {
		return nil
	}
	if d.cfg.Responsible.ChatID == 0 {
		d.log.Warn("escalation flagged but no responsible group is configured")
		return nil
	}
	if err := d.send(ctx, "notify.alert", d.cfg.Responsible, dg.Alert); err != nil {
		return fmt.Errorf("deliver escalation alert: %w", err)
	}
	d.log.Info("escalation alert delivered", logx.Int64("chat_id", d.cfg.Responsible.ChatID))
	return nil
}

func (d *Deliverer) send(ctx context.Context, op string, to transport.ChatTarget, text string) error {
	opts := &transport.SendOptions{ParseMode: d.cfg.ParseMode, DisablePreview: true}
	return d.cfg.Retry.Do(ctx, d.log, op, func(ctx context.Context) error {
		if err := d.limiter.Wait(ctx); err != nil {
			return err
		}
		_, err := d.sender.SendText(ctx, to, text, opts)
		return err
	})
}

package notify

import (
	"context"
	"errors"
	"fmt"

	"btcagent/internal/logger"
	"btcagent/internal/metrics"
)

// Dispatcher 按置信度分级并把消息投递给所有 Sender。SUPPRESS 不发送任何消息。
type Dispatcher struct {
	thresholds Thresholds
	senders    []Sender
	metrics    *metrics.Metrics
}

func NewDispatcher(t Thresholds, m *metrics.Metrics, senders ...Sender) (*Dispatcher, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if len(senders) == 0 {
		senders = []Sender{LogSender{}}
	}
	return &Dispatcher{thresholds: t, senders: senders, metrics: m}, nil
}

func (d *Dispatcher) Thresholds() Thresholds { return d.thresholds }

// Notify routes p and delivers it. The returned tier is valid even when
// delivery fails; errors from individual senders are joined.
func (d *Dispatcher) Notify(ctx context.Context, p Payload) (Tier, error) {
	tier := Route(p.Confidence, d.thresholds)
	d.metrics.IncNotification(string(tier))
	msg, ok := BuildMessage(tier, p)
	if !ok {
		logger.ForRun(p.RunID).Infof("置信度 %.2f 低于审核阈值 %.2f，不发送通知", p.Confidence, d.thresholds.Review)
		return tier, nil
	}
	var errs []error
	for _, s := range d.senders {
		if err := s.Send(ctx, msg); err != nil {
			logger.ForRun(p.RunID).Warnf("%s 通知发送失败: %v", s.Name(), err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return tier, errors.Join(errs...)
}

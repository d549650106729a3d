package scheduler

import (
	"context"
	"time"

	"btcagent/internal/logger"
)

// AlignedOnceScheduler 首次执行对齐到 AlignInterval 边界，之后按固定 Interval 执行。
// 用于绩效评估这类间隔远大于 K 线周期的任务。
type AlignedOnceScheduler struct {
	Name           string
	AlignInterval  time.Duration
	Interval       time.Duration
	Offset         time.Duration
	RunImmediately bool

	ctx   context.Context
	nowFn func() time.Time
}

func NewAlignedOnceScheduler(ctx context.Context, alignInterval, interval, offset time.Duration) *AlignedOnceScheduler {
	if ctx == nil {
		ctx = context.Background()
	}
	return &AlignedOnceScheduler{
		AlignInterval: alignInterval,
		Interval:      interval,
		Offset:        offset,
		ctx:           ctx,
		nowFn:         time.Now,
	}
}

func (s *AlignedOnceScheduler) Start(task func()) {
	if s == nil {
		return
	}
	prefix := "AlignedOnceScheduler"
	if s.Name != "" {
		prefix = prefix + "[" + s.Name + "]"
	}
	if task == nil {
		logger.Warnf("%s: task is nil, exit", prefix)
		return
	}
	if s.AlignInterval <= 0 || s.Interval <= 0 {
		logger.Warnf("%s: invalid align_interval=%s interval=%s, exit", prefix, s.AlignInterval, s.Interval)
		return
	}
	if s.Offset < 0 {
		s.Offset = 0
	}
	if s.ctx == nil {
		s.ctx = context.Background()
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}

	startAt := s.nowFn().UTC()
	logger.Infof("%s: started align_interval=%s interval=%s offset=%s run_immediately=%v at=%s",
		prefix, s.AlignInterval, s.Interval, s.Offset, s.RunImmediately, startAt.Format(time.RFC3339))

	if s.RunImmediately {
		task()
	}

	now := s.nowFn().UTC()
	firstAt := now.Truncate(s.AlignInterval).Add(s.AlignInterval).Add(s.Offset)
	logger.Infof("%s: 第一次执行=%s (in %s) 第二次执行=%s",
		prefix,
		firstAt.Format(time.RFC3339),
		firstAt.Sub(now).Truncate(time.Second),
		firstAt.Add(s.Interval).Format(time.RFC3339),
	)

	if !s.waitUntil(prefix, firstAt) {
		return
	}
	task()

	anchor := firstAt.UTC()
	for {
		nextAt := nextFixedTimeAfter(anchor, s.Interval, s.nowFn().UTC())
		logger.Debugf("%s: 下次执行=%s | uptime=%s", prefix,
			nextAt.Format(time.RFC3339), s.nowFn().Sub(startAt).Truncate(time.Second))
		if !s.waitUntil(prefix, nextAt) {
			return
		}
		task()
	}
}

func (s *AlignedOnceScheduler) waitUntil(prefix string, target time.Time) bool {
	wait := target.Sub(s.nowFn().UTC())
	if wait <= 0 {
		select {
		case <-s.ctx.Done():
			logger.Infof("%s: ctx done, exit", prefix)
			return false
		default:
			return true
		}
	}

	timer := time.NewTimer(wait)
	select {
	case <-s.ctx.Done():
		timer.Stop()
		logger.Infof("%s: ctx done, exit", prefix)
		return false
	case <-timer.C:
		return true
	}
}

// nextFixedTimeAfter 返回 anchor + k*interval 中严格晚于 now 的最早时刻。
func nextFixedTimeAfter(anchor time.Time, interval time.Duration, now time.Time) time.Time {
	anchor = anchor.UTC()
	now = now.UTC()
	if interval <= 0 {
		return now
	}
	delta := now.Sub(anchor)
	if delta < 0 {
		return anchor
	}
	k := delta / interval
	return anchor.Add((k + 1) * interval)
}

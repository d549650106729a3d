package scheduler

import (
	"context"
	"fmt"
	"time"

	"btcagent/internal/logger"

	"golang.org/x/sync/errgroup"
)

// Task 周期任务；返回的错误只记录日志，不会中断调度。
type Task func(ctx context.Context) error

// Job 描述一个周期任务。
// AlignInterval > 0 时首轮对齐到该粒度的边界，之后每隔 Interval 执行一次；
// 否则每轮都对齐到 Interval 的边界（K 线收盘时刻）。
type Job struct {
	Name           string
	Interval       time.Duration
	AlignInterval  time.Duration
	Offset         time.Duration
	RunImmediately bool
	Task           Task
}

// Scheduler 并行驱动多个 Job，同一 Job 串行执行不会重叠。
type Scheduler struct {
	jobs  []Job
	nowFn func() time.Time
}

func New(jobs ...Job) *Scheduler {
	return &Scheduler{jobs: jobs, nowFn: time.Now}
}

// Run 阻塞直到 ctx 结束。
func (s *Scheduler) Run(ctx context.Context) error {
	for _, j := range s.jobs {
		if j.Task == nil || j.Interval <= 0 {
			return fmt.Errorf("scheduler: job %q 配置无效 (interval=%s)", j.Name, j.Interval)
		}
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, j := range s.jobs {
		j := j
		task := guarded(gctx, j)
		g.Go(func() error {
			if j.AlignInterval > 0 {
				once := &AlignedOnceScheduler{
					Name:           j.Name,
					AlignInterval:  j.AlignInterval,
					Interval:       j.Interval,
					Offset:         j.Offset,
					RunImmediately: j.RunImmediately,
					ctx:            gctx,
					nowFn:          s.nowFn,
				}
				once.Start(task)
				return nil
			}
			aligned := &AlignedScheduler{
				Name:           j.Name,
				Interval:       j.Interval,
				Offset:         j.Offset,
				RunImmediately: j.RunImmediately,
				ctx:            gctx,
				nowFn:          s.nowFn,
			}
			aligned.Start(task)
			return nil
		})
	}
	return g.Wait()
}

// guarded 把 Task 包装成无返回值的回调：记录耗时与错误，并吞掉 panic。
func guarded(ctx context.Context, j Job) func() {
	return func() {
		if ctx.Err() != nil {
			return
		}
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("[%s] 任务 panic: %v", j.Name, r)
			}
		}()
		if err := j.Task(ctx); err != nil {
			logger.Warnf("[%s] 任务失败 (%s): %v", j.Name, time.Since(start).Truncate(time.Millisecond), err)
			return
		}
		logger.Debugf("[%s] 任务完成 (%s)", j.Name, time.Since(start).Truncate(time.Millisecond))
	}
}

// AlignedScheduler 每轮在 Interval 边界 + Offset 时刻执行。
type AlignedScheduler struct {
	Name           string
	Interval       time.Duration
	Offset         time.Duration
	RunImmediately bool

	ctx   context.Context
	nowFn func() time.Time
}

func NewAlignedScheduler(ctx context.Context, interval, offset time.Duration) *AlignedScheduler {
	if ctx == nil {
		ctx = context.Background()
	}
	return &AlignedScheduler{
		Interval: interval,
		Offset:   offset,
		ctx:      ctx,
		nowFn:    time.Now,
	}
}

func (s *AlignedScheduler) prefix() string {
	if s.Name == "" {
		return "AlignedScheduler"
	}
	return "AlignedScheduler[" + s.Name + "]"
}

func (s *AlignedScheduler) Start(task func()) {
	if s == nil {
		return
	}
	prefix := s.prefix()
	if task == nil {
		logger.Warnf("%s: task is nil, exit", prefix)
		return
	}
	if s.Interval <= 0 {
		logger.Warnf("%s: invalid interval=%s, exit", prefix, s.Interval)
		return
	}
	if s.Offset < 0 {
		logger.Warnf("%s: negative offset=%s, clamp to 0", prefix, s.Offset)
		s.Offset = 0
	}
	if s.ctx == nil {
		s.ctx = context.Background()
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}

	startAt := s.nowFn().UTC()
	logger.Infof("%s: started interval=%s offset=%s run_immediately=%v at=%s",
		prefix, s.Interval, s.Offset, s.RunImmediately, startAt.Format(time.RFC3339))

	if s.RunImmediately {
		task()
	}

	for {
		if s.ctx.Err() != nil {
			logger.Infof("%s: ctx done, exit", prefix)
			return
		}
		now := s.nowFn().UTC()
		nextClose, wakeAt, _, wait := s.nextTimes(now)
		logger.Debugf("%s: 下一轮=%s (收盘=%s, in %s) | uptime=%s",
			prefix,
			wakeAt.Format(time.RFC3339),
			nextClose.Format(time.RFC3339),
			wait.Truncate(time.Second),
			now.Sub(startAt).Truncate(time.Second),
		)

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-s.ctx.Done():
				timer.Stop()
				logger.Infof("%s: ctx done, exit", prefix)
				return
			case <-timer.C:
			}
		}
		task()
	}
}

func (s *AlignedScheduler) nextTimes(now time.Time) (nextClose time.Time, wakeAt time.Time, untilClose time.Duration, wait time.Duration) {
	now = now.UTC()
	nextClose = now.Truncate(s.Interval).Add(s.Interval)
	wakeAt = nextClose.Add(s.Offset)
	untilClose = nextClose.Sub(now)
	wait = wakeAt.Sub(now)
	return nextClose, wakeAt, untilClose, wait
}

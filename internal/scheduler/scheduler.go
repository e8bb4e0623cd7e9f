package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Refresher 重新计算并覆盖图片列表缓存
type Refresher interface {
	Refresh(ctx context.Context) ([]string, error)
}

type Scheduler struct {
	cron      *cron.Cron
	refresher Refresher
	timeout   time.Duration

	// StartupDelay 首轮预热的延迟，避免与进程启动时的首个页面请求争抢
	StartupDelay time.Duration

	mu     sync.Mutex
	warmup *time.Timer
}

func New(spec string, r Refresher, timeout time.Duration) (*Scheduler, error) {
	c := cron.New()

	s := &Scheduler{
		cron:         c,
		refresher:    r,
		timeout:      timeout,
		StartupDelay: 15 * time.Second,
	}

	_, err := c.AddFunc(spec, s.runOnce)
	if err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()

	s.mu.Lock()
	s.warmup = time.AfterFunc(s.StartupDelay, s.runOnce)
	s.mu.Unlock()
}

// Stop 取消尚未触发的首轮预热，停止调度并等待正在执行的任务结束
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.warmup != nil {
		s.warmup.Stop()
	}
	s.mu.Unlock()

	<-s.cron.Stop().Done()
}

// RunOnce 对外暴露的单次执行入口，方便手动触发预热
func (s *Scheduler) RunOnce() {
	s.runOnce()
}

func (s *Scheduler) runOnce() {
	log.Println("start cache warm-up job...")

	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	images, err := s.refresher.Refresh(ctx)
	if err != nil {
		log.WithError(err).Warn("cache warm-up failed, keeping previous cache entry")
		return
	}
	log.Printf("cache warm-up done, images=%d took=%s", len(images), time.Since(start).Round(time.Millisecond))
}

package queue

import (
	"context"
	"time"

	"github.com/iabetor/bookvoice/internal/logger"
)

// StartScheduleChecker 周期性检查定时运行时间，到点后触发一轮队列处理。
// 阻塞直到 ctx 取消，应在独立协程中运行。
func (p *Processor) StartScheduleChecker(ctx context.Context) {
	interval := time.Duration(p.cfg.Queue.ScheduleCheckSecs) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}

	logger.Infof("[queue] 定时检查器已启动，间隔 %s", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("[queue] 定时检查器已停止")
			return
		case <-ticker.C:
			p.checkSchedule(ctx)
		}
	}
}

// checkSchedule 单次检查：到点且空闲才触发。
// 队列正在处理时到点是无操作，定时时间留到下个 tick 再看。
func (p *Processor) checkSchedule(ctx context.Context) {
	if p.Running() {
		return
	}

	scheduled, ok, err := p.store.ScheduleTime()
	if err != nil {
		logger.Warnf("[queue] 读取定时运行时间失败: %v", err)
		return
	}
	if !ok || time.Now().Before(scheduled) {
		return
	}

	// 先清槽位再跑，防止本轮耗时超过一个 tick 时重复触发
	if err := p.store.ClearSchedule(); err != nil {
		logger.Warnf("[queue] 清除定时运行失败: %v", err)
		return
	}

	if err := p.acquire(); err != nil {
		return
	}
	defer p.release()

	logger.Infof("[queue] 定时运行触发（计划时间 %s）", scheduled.Format("2006-01-02 15:04:05"))
	if err := p.runPass(ctx); err != nil {
		logger.Errorf("[queue] 定时运行失败: %v", err)
	}
}

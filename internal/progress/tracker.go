// Package progress 跟踪一次合成任务的进度与 ETA 估算。
package progress

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// 未实测前的吞吐假设（字符/秒）。
// 加速硬件上的合成远快于纯 CPU，初始估算差一个量级。
const (
	DefaultRateAccelerated = 500.0
	DefaultRateCPU         = 50.0
)

// Tracker 按已处理字符数累计进度。
// 速率起始于硬件假设值，之后可用实测速率覆盖；
// 所有方法并发安全，合成工人与事件上报可同时访问。
type Tracker struct {
	mu         sync.Mutex
	totalChars int
	processed  int
	rate       float64
	startedAt  time.Time
}

// New 创建进度跟踪器。accelerated 决定初始速率假设。
func New(totalChars int, accelerated bool) *Tracker {
	rate := DefaultRateCPU
	if accelerated {
		rate = DefaultRateAccelerated
	}
	return &Tracker{
		totalChars: totalChars,
		rate:       rate,
		startedAt:  time.Now(),
	}
}

// SetRate 用实测速率覆盖假设值。非正值被忽略，保留原速率。
func (t *Tracker) SetRate(charsPerSec float64) {
	if charsPerSec <= 0 {
		return
	}
	t.mu.Lock()
	t.rate = charsPerSec
	t.mu.Unlock()
}

// SetRateString 解析用户给定的速率字符串并覆盖。
// 解析失败或非正值时静默保留当前速率。
func (t *Tracker) SetRateString(s string) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return
	}
	t.SetRate(v)
}

// Add 累计 n 个已处理字符。
func (t *Tracker) Add(n int) {
	t.mu.Lock()
	t.processed += n
	t.mu.Unlock()
}

// Percent 返回 0–100 的整数百分比。总量为 0 时返回 100。
func (t *Tracker) Percent() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.totalChars <= 0 {
		return 100
	}
	p := t.processed * 100 / t.totalChars
	if p > 100 {
		p = 100
	}
	return p
}

// Processed 返回已处理字符数和总字符数。
func (t *Tracker) Processed() (int, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.processed, t.totalChars
}

// Rate 返回当前使用的速率（字符/秒）。
func (t *Tracker) Rate() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rate
}

// ETA 按当前速率估算剩余时间。
func (t *Tracker) ETA() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	remaining := t.totalChars - t.processed
	if remaining <= 0 || t.rate <= 0 {
		return 0
	}
	return time.Duration(float64(remaining)/t.rate) * time.Second
}

// Elapsed 返回从创建起经过的时间。
func (t *Tracker) Elapsed() time.Duration {
	return time.Since(t.startedAt)
}

// MeasuredRate 返回实测速率：已处理字符 / 已经过秒数。
// 尚未处理任何字符时返回 0。
func (t *Tracker) MeasuredRate() float64 {
	t.mu.Lock()
	processed := t.processed
	t.mu.Unlock()
	secs := time.Since(t.startedAt).Seconds()
	if processed == 0 || secs <= 0 {
		return 0
	}
	return float64(processed) / secs
}

// FormatDuration 把时长格式化成人可读的字段串，只输出非零字段，
// 如 "2h 5m 11s"、"45s"。零时长输出 "0s"。
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d.Seconds())
	days := total / 86400
	hours := (total % 86400) / 3600
	mins := (total % 3600) / 60
	secs := total % 60

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if mins > 0 {
		parts = append(parts, fmt.Sprintf("%dm", mins))
	}
	if secs > 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%ds", secs))
	}
	return strings.Join(parts, " ")
}

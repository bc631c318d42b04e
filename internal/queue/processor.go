// Package queue 按顺序处理持久化的批量合成队列。
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/iabetor/bookvoice/internal/book"
	"github.com/iabetor/bookvoice/internal/config"
	"github.com/iabetor/bookvoice/internal/logger"
	"github.com/iabetor/bookvoice/internal/m4b"
	"github.com/iabetor/bookvoice/internal/store"
	"github.com/iabetor/bookvoice/internal/synth"
	"github.com/iabetor/bookvoice/internal/textfilter"
	"github.com/iabetor/bookvoice/internal/tts"
)

// ErrAlreadyRunning 表示已有一次队列处理在进行中。
var ErrAlreadyRunning = errors.New("队列正在处理中")

// EngineFactory 按条目设置快照构建 TTS 引擎，测试时可注入假引擎。
type EngineFactory func(settings store.Settings) (tts.Engine, error)

// AssembleFunc 把章节音频组装成成品，测试时可注入空实现。
type AssembleFunc func(ctx context.Context, chapters []m4b.Chapter, title, author, sourcePath, outputDir string, cover []byte) (string, error)

// Processor 驱动队列的一轮处理：逐条取出、合成、组装、收尾清理。
// 同一时刻只允许一轮处理在跑。
type Processor struct {
	store  *store.Store
	cfg    *config.Config
	filter *textfilter.Filter
	obs    synth.Observer

	newEngine EngineFactory
	assemble  AssembleFunc

	mu      sync.Mutex
	running bool
}

// New 创建队列处理器。obs 可以为 nil。
func New(st *store.Store, cfg *config.Config, filter *textfilter.Filter, obs synth.Observer) *Processor {
	p := &Processor{
		store:  st,
		cfg:    cfg,
		filter: filter,
		obs:    obs,
	}
	p.newEngine = p.defaultEngineFactory
	assembler := &m4b.Assembler{}
	p.assemble = assembler.Assemble
	return p
}

// defaultEngineFactory 用条目设置快照补上全局配置里的引擎凭据。
func (p *Processor) defaultEngineFactory(settings store.Settings) (tts.Engine, error) {
	engine := settings.Engine
	if engine == "" {
		engine = p.cfg.TTS.Engine
	}
	return tts.NewEngine(tts.Options{
		Engine:         engine,
		Voice:          settings.Voice,
		Speed:          settings.Speed,
		PiperModelPath: p.cfg.TTS.Piper.ModelPath,
		Tencent: tts.TencentConfig{
			SecretID:  p.cfg.TTS.Tencent.SecretID,
			SecretKey: p.cfg.TTS.Tencent.SecretKey,
			VoiceType: p.cfg.TTS.Tencent.VoiceType,
			Region:    p.cfg.TTS.Tencent.Region,
		},
	})
}

// Running 报告是否有一轮处理在进行中。
func (p *Processor) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// acquire 占用运行槽位。已被占用时返回 ErrAlreadyRunning。
func (p *Processor) acquire() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return ErrAlreadyRunning
	}
	p.running = true
	return nil
}

func (p *Processor) release() {
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
}

// Run 手动触发一轮队列处理。
// 手动运行接管队列：已设置的定时运行被清除，避免同一批条目被跑两次。
func (p *Processor) Run(ctx context.Context) error {
	if err := p.acquire(); err != nil {
		return err
	}
	defer p.release()

	if err := p.store.ClearSchedule(); err != nil {
		logger.Warnf("[queue] 清除定时运行失败: %v", err)
	}
	return p.runPass(ctx)
}

// runPass 处理一轮队列：逐条处理 pending 条目，结束后清掉已终结的条目。
// 单条失败记为 error 后继续，只有 ctx 取消才中断整轮。
func (p *Processor) runPass(ctx context.Context) error {
	entries, err := p.store.QueueEntries()
	if err != nil {
		return fmt.Errorf("[queue] 读取队列失败: %w", err)
	}

	pending := 0
	for _, e := range entries {
		if e.Status == store.StatusPending {
			pending++
		}
	}
	logger.Infof("[queue] 开始处理: %d 个条目，其中 %d 个待处理", len(entries), pending)

	for _, entry := range entries {
		if entry.Status != store.StatusPending {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		p.processEntry(ctx, entry)
	}

	p.purgeFinished()
	logger.Info("[queue] 本轮处理结束")
	return ctx.Err()
}

// processEntry 处理单个队列条目，任何失败都落为该条目的 error 状态。
func (p *Processor) processEntry(ctx context.Context, entry store.QueueEntry) {
	logger.Infof("[queue] 处理条目 %d: %s", entry.ID, entry.BookTitle)
	if err := p.store.UpdateQueueStatus(entry.ID, store.StatusInProgress); err != nil {
		logger.Errorf("[queue] 更新条目 %d 状态失败: %v", entry.ID, err)
		return
	}

	if err := p.validateSettings(entry.Settings); err != nil {
		p.failEntry(entry.ID, err)
		return
	}

	chapters := p.resolveChapters(entry)
	if len(chapters) == 0 {
		p.failEntry(entry.ID, fmt.Errorf("条目没有任何可合成的章节文本"))
		return
	}

	engine, err := p.newEngine(entry.Settings)
	if err != nil {
		p.failEntry(entry.ID, fmt.Errorf("创建引擎失败: %w", err))
		return
	}

	author, cover := p.bookMeta(entry)
	params := synth.Params{
		BookTitle:   entry.BookTitle,
		Author:      author,
		SourcePath:  p.sourcePathFor(entry),
		OutputDir:   entry.Settings.OutputFolder,
		Voice:       entry.Settings.Voice,
		Accelerated: p.cfg.Synth.Accelerated,
		CustomRate:  p.customRate(),
	}

	synthesizer := synth.New(engine, p.filter, p.obs)
	results, err := synthesizer.Run(ctx, params, chapters)
	if err != nil {
		// ctx 取消：条目留在 error 状态，下轮重新入队后可续跑
		p.failEntry(entry.ID, err)
		return
	}

	p.writeChapterStatuses(chapters, results)

	var produced []m4b.Chapter
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			continue
		}
		if r.Path != "" {
			produced = append(produced, m4b.Chapter{Path: r.Path, Title: r.Title})
		}
	}

	if len(produced) == 0 {
		p.failEntry(entry.ID, fmt.Errorf("没有任何章节产出音频（%d 章失败）", failed))
		return
	}

	finalPath := params.OutputDir
	if entry.Settings.AssemblyMethod != store.AssemblyWAV {
		finalPath, err = p.assemble(ctx, produced, entry.BookTitle, author, params.SourcePath, params.OutputDir, cover)
		if err != nil {
			// 章节 WAV 保留在输出目录，修复 ffmpeg 问题后重跑只差组装
			p.failEntry(entry.ID, err)
			return
		}
	}

	if failed > 0 {
		logger.Warnf("[queue] 条目 %d 完成但有 %d 章失败: %s", entry.ID, failed, finalPath)
	} else {
		logger.Infof("[queue] 条目 %d 完成: %s", entry.ID, finalPath)
	}
	if err := p.store.UpdateQueueStatus(entry.ID, store.StatusCompleted); err != nil {
		logger.Errorf("[queue] 更新条目 %d 状态失败: %v", entry.ID, err)
	}
}

// validateSettings 校验条目设置快照的必填项。
func (p *Processor) validateSettings(s store.Settings) error {
	if s.Voice == "" {
		return fmt.Errorf("条目设置缺少语音")
	}
	if s.Speed <= 0 {
		return fmt.Errorf("条目设置语速非法: %v", s.Speed)
	}
	if s.OutputFolder == "" {
		return fmt.Errorf("条目设置缺少输出目录")
	}
	return nil
}

// resolveChapters 还原条目的章节文本：
// 内联文本优先；没有内联时按暂存章节引用取。两者都拿不到的章节跳过。
func (p *Processor) resolveChapters(entry store.QueueEntry) []book.Chapter {
	var chapters []book.Chapter
	for _, qc := range entry.Chapters {
		ch := book.Chapter{
			Index:    qc.Order,
			Title:    qc.Title,
			Selected: true,
			Status:   book.StatusPending,
		}
		switch {
		case qc.Text != nil && *qc.Text != "":
			ch.Text = *qc.Text
			ch.Origin = book.Inline
		case qc.StagedChapterID != nil:
			text, err := p.store.StagedChapterText(*qc.StagedChapterID)
			if err != nil {
				logger.Warnf("[queue] 条目 %d 章节 %q 取文本失败: %v", entry.ID, qc.Title, err)
				continue
			}
			ch.Text = text
			ch.Origin = book.FromStore
			ch.StagedID = *qc.StagedChapterID
		default:
			logger.Warnf("[queue] 条目 %d 章节 %q 既无内联文本也无暂存引用，跳过", entry.ID, qc.Title)
			continue
		}
		chapters = append(chapters, ch)
	}
	return chapters
}

// customRate 读取持久化的吞吐覆盖值（字符/秒），未设置时为空串。
// 非法值由进度跟踪器静默回退，这里不做校验。
func (p *Processor) customRate() string {
	raw, ok, err := p.store.Setting("custom_rate")
	if err != nil || !ok {
		return ""
	}
	return raw
}

// writeChapterStatuses 把单章结果回写到暂存章节状态，
// 便于之后查看每章的结局而不必重跑。
func (p *Processor) writeChapterStatuses(chapters []book.Chapter, results []synth.ChapterResult) {
	for i, r := range results {
		if i >= len(chapters) || chapters[i].Origin != book.FromStore || chapters[i].StagedID == 0 {
			continue
		}
		status := book.StatusDone
		if r.Err != nil {
			status = book.StatusError
		}
		if err := p.store.UpdateStagedChapterStatus(chapters[i].StagedID, status); err != nil {
			logger.Warnf("[queue] 回写章节 %d 状态失败: %v", chapters[i].StagedID, err)
		}
	}
}

// bookMeta 从暂存书记录补全作者；封面暂不入库，返回空。
func (p *Processor) bookMeta(entry store.QueueEntry) (string, []byte) {
	if entry.StagedBookID == nil {
		return "", nil
	}
	b, err := p.store.StagedBook(*entry.StagedBookID)
	if err != nil || b == nil {
		return "", nil
	}
	return b.Author, nil
}

// sourcePathFor 决定输出文件基础名用的源路径，缺失时退回书名。
func (p *Processor) sourcePathFor(entry store.QueueEntry) string {
	if entry.SourcePath != "" {
		return entry.SourcePath
	}
	return entry.BookTitle
}

// failEntry 把条目落为 error 状态并记日志。
func (p *Processor) failEntry(itemID int64, cause error) {
	logger.Errorf("[queue] 条目 %d 失败: %v", itemID, cause)
	if err := p.store.UpdateQueueStatus(itemID, store.StatusError); err != nil {
		logger.Errorf("[queue] 更新条目 %d 状态失败: %v", itemID, err)
	}
}

// purgeFinished 清掉本轮处理后已终结（completed / error）的条目。
// 失败详情已经在日志里，队列只保留还要跑的活。
func (p *Processor) purgeFinished() {
	entries, err := p.store.QueueEntries()
	if err != nil {
		logger.Warnf("[queue] 收尾清理读取队列失败: %v", err)
		return
	}
	for _, e := range entries {
		if e.Status != store.StatusCompleted && e.Status != store.StatusError {
			continue
		}
		if err := p.store.RemoveQueueEntry(e.ID); err != nil {
			logger.Warnf("[queue] 清理条目 %d 失败: %v", e.ID, err)
		}
	}
}

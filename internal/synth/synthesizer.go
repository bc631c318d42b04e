// Package synth 把选中的章节逐个合成为 WAV 文件，
// 并通过事件观察者上报进度。
package synth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/iabetor/bookvoice/internal/audio"
	"github.com/iabetor/bookvoice/internal/book"
	"github.com/iabetor/bookvoice/internal/logger"
	"github.com/iabetor/bookvoice/internal/progress"
	"github.com/iabetor/bookvoice/internal/textfilter"
	"github.com/iabetor/bookvoice/internal/tts"
)

// ErrNoAudio 表示引擎对整章文本没有产出任何音频。
// 这是单章级的可恢复失败：记录后继续下一章。
var ErrNoAudio = errors.New("引擎未产出音频")

// 过滤后短于该字符数的章节直接跳过，不值得朗读。
const minChapterChars = 10

// Params 一次合成任务的参数。
type Params struct {
	BookTitle  string
	Author     string
	SourcePath string // 原始文档路径，决定输出文件的基础名
	OutputDir  string
	Voice      string // 只用于输出文件命名，引擎自身已携带语音配置

	// Accelerated 为 true 时按加速硬件的吞吐假设估算 ETA。
	Accelerated bool
	// CustomRate 用户给定的速率（字符/秒），空串或非法值时用默认假设。
	CustomRate string
}

// ChapterResult 单章合成结果。
type ChapterResult struct {
	Index   int
	Title   string
	Path    string // 产出的 WAV 文件路径，失败时为空
	Skipped bool   // 已存在或文本过短
	Err     error  // 单章失败原因，成功或跳过时为 nil
}

// Synthesizer 驱动一本书的章节合成。
type Synthesizer struct {
	engine tts.Engine
	filter *textfilter.Filter
	obs    Observer
}

// New 创建合成器。filter 和 obs 都可以为 nil。
func New(engine tts.Engine, filter *textfilter.Filter, obs Observer) *Synthesizer {
	return &Synthesizer{engine: engine, filter: filter, obs: obs}
}

// Run 依次合成所有选中章节。
// 单章失败记入结果后继续，只有 ctx 取消才中断整本书。
// 已存在同名 WAV 的章节跳过合成，重跑只补缺失的章节。
func (s *Synthesizer) Run(ctx context.Context, p Params, chapters []book.Chapter) ([]ChapterResult, error) {
	selected := book.SelectedChapters(chapters)
	if len(selected) == 0 {
		return nil, fmt.Errorf("没有选中任何章节")
	}

	if err := os.MkdirAll(p.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}

	totalChars := 0
	for _, ch := range selected {
		totalChars += len([]rune(ch.Text))
	}

	tracker := progress.New(totalChars, p.Accelerated)
	if p.CustomRate != "" {
		tracker.SetRateString(p.CustomRate)
	}

	logger.Infof("[synth] 开始合成《%s》: %d 章，共 %d 字符，预计 %s",
		p.BookTitle, len(selected), totalChars, progress.FormatDuration(tracker.ETA()))
	emit(s.obs, Event{Kind: EventStarted, BookTitle: p.BookTitle, Total: totalChars})

	results := make([]ChapterResult, 0, len(selected))
	var runErr error
	for i, ch := range selected {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		text := ch.Text
		if i == 0 && p.BookTitle != "" {
			// 首章前朗读书名与作者，听的人才知道放的是哪本书
			intro := p.BookTitle
			if p.Author != "" {
				intro += " – " + p.Author
			}
			text = intro + ".\n\n" + text
		}

		res := s.synthesizeChapter(ctx, p, tracker, ch, i+1, text)
		results = append(results, res)

		// 用实测速率修正后续章节的 ETA
		if measured := tracker.MeasuredRate(); measured > 0 {
			tracker.SetRate(measured)
		}
	}

	emit(s.obs, Event{Kind: EventFinished, BookTitle: p.BookTitle, Err: runErr})
	logger.Infof("[synth] 《%s》合成结束，用时 %s", p.BookTitle, progress.FormatDuration(tracker.Elapsed()))
	return results, runErr
}

// synthesizeChapter 合成单章。任何失败都包在返回值里，不向上传播。
func (s *Synthesizer) synthesizeChapter(ctx context.Context, p Params, tracker *progress.Tracker, ch book.Chapter, index int, text string) ChapterResult {
	res := ChapterResult{Index: index, Title: ch.Title}
	wavPath := ChapterWAVPath(p.OutputDir, p.SourcePath, index, p.Voice, ch.Title)
	res.Path = wavPath

	emit(s.obs, Event{Kind: EventChapterStarted, BookTitle: p.BookTitle, ChapterIndex: index, ChapterTitle: ch.Title})

	chapterChars := len([]rune(ch.Text))

	// 断点续跑：文件已存在就不再合成
	if _, err := os.Stat(wavPath); err == nil {
		logger.Infof("[synth] 第 %d 章已存在，跳过: %s", index, filepath.Base(wavPath))
		res.Skipped = true
		tracker.Add(chapterChars)
		s.emitChapterDone(p, tracker, res)
		return res
	}

	filtered := s.filter.Apply(text)
	if len([]rune(strings.TrimSpace(filtered))) < minChapterChars {
		logger.Infof("[synth] 第 %d 章过滤后过短，跳过", index)
		res.Skipped = true
		res.Path = ""
		tracker.Add(chapterChars)
		s.emitChapterDone(p, tracker, res)
		return res
	}

	var samples []float32
	sampleRate := 0
	for _, chunk := range mergeSentences(filtered, 0) {
		if err := ctx.Err(); err != nil {
			res.Err = err
			res.Path = ""
			s.emitChapterDone(p, tracker, res)
			return res
		}

		chunkSamples, rate, err := s.engine.Synthesize(ctx, chunk)
		if err != nil {
			logger.Warnf("[synth] 第 %d 章句段合成失败: %v", index, err)
			continue
		}
		if sampleRate == 0 {
			sampleRate = rate
		}
		samples = append(samples, chunkSamples...)

		tracker.Add(len([]rune(chunk)))
		processed, total := tracker.Processed()
		emit(s.obs, Event{
			Kind:      EventProgress,
			BookTitle: p.BookTitle,
			Percent:   tracker.Percent(),
			Processed: processed,
			Total:     total,
			ETA:       tracker.ETA(),
		})
	}

	if len(samples) == 0 {
		res.Err = fmt.Errorf("第 %d 章 %q: %w", index, ch.Title, ErrNoAudio)
		res.Path = ""
		s.emitChapterDone(p, tracker, res)
		return res
	}

	if err := audio.WriteWAV(wavPath, samples, sampleRate); err != nil {
		res.Err = fmt.Errorf("第 %d 章写文件失败: %w", index, err)
		res.Path = ""
		s.emitChapterDone(p, tracker, res)
		return res
	}

	logger.Infof("[synth] 第 %d 章完成: %s (%d 样本)", index, filepath.Base(wavPath), len(samples))
	s.emitChapterDone(p, tracker, res)
	return res
}

func (s *Synthesizer) emitChapterDone(p Params, tracker *progress.Tracker, res ChapterResult) {
	emit(s.obs, Event{
		Kind:         EventChapterFinished,
		BookTitle:    p.BookTitle,
		ChapterIndex: res.Index,
		ChapterTitle: res.Title,
		OutputPath:   res.Path,
		Skipped:      res.Skipped,
		Percent:      tracker.Percent(),
		ETA:          tracker.ETA(),
		Err:          res.Err,
	})
}

// ChapterWAVPath 计算章节 WAV 的输出路径：
// <基础名>_chapter_<序号>_<语音>_<章节名>.wav，章节名中的空格和斜杠替换为下划线。
func ChapterWAVPath(outputDir, sourcePath string, index int, voice, chapterName string) string {
	base := filepath.Base(sourcePath)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	name := strings.NewReplacer(" ", "_", "/", "_", "\\", "_").Replace(chapterName)
	filename := fmt.Sprintf("%s_chapter_%d_%s_%s.wav", base, index, voice, name)
	return filepath.Join(outputDir, filename)
}

package synth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/iabetor/bookvoice/internal/book"
)

// fakeEngine 每次调用返回固定样本，并记录收到的文本。
type fakeEngine struct {
	mu    sync.Mutex
	calls []string
	fail  bool
	mute  bool // 返回空样本
}

func (f *fakeEngine) Synthesize(ctx context.Context, text string) ([]float32, int, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	f.mu.Unlock()
	if f.fail {
		return nil, 0, errors.New("模拟引擎故障")
	}
	if f.mute {
		return nil, 22050, nil
	}
	return []float32{0.1, -0.1, 0.2}, 22050, nil
}

// collector 收集所有事件用于断言。
type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) OnEvent(e Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

func (c *collector) kinds() []EventKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]EventKind, len(c.events))
	for i, e := range c.events {
		out[i] = e.Kind
	}
	return out
}

func testChapters() []book.Chapter {
	long := strings.Repeat("这是正文内容。", 20)
	return []book.Chapter{
		{Index: 1, Title: "第一章", Text: long, Selected: true},
		{Index: 2, Title: "第二章", Text: long, Selected: true},
	}
}

func testParams(dir string) Params {
	return Params{
		BookTitle:  "测试书",
		Author:     "测试作者",
		SourcePath: "/books/测试书.epub",
		OutputDir:  dir,
		Voice:      "zh-CN-XiaoxiaoNeural",
	}
}

func TestRunProducesChapterFiles(t *testing.T) {
	dir := t.TempDir()
	engine := &fakeEngine{}
	obs := &collector{}
	s := New(engine, nil, obs)

	results, err := s.Run(context.Background(), testParams(dir), testChapters())
	if err != nil {
		t.Fatalf("Run 失败: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("结果数 = %d, 期望 2", len(results))
	}
	for _, r := range results {
		if r.Err != nil {
			t.Errorf("第 %d 章失败: %v", r.Index, r.Err)
		}
		if _, err := os.Stat(r.Path); err != nil {
			t.Errorf("第 %d 章 WAV 不存在: %v", r.Index, err)
		}
	}

	// 首章前应朗读书名与作者
	if len(engine.calls) == 0 || !strings.Contains(engine.calls[0], "测试书 – 测试作者") {
		t.Error("首章应以书名和作者开头")
	}

	kinds := obs.kinds()
	if kinds[0] != EventStarted {
		t.Errorf("首事件 = %v, 期望 started", kinds[0])
	}
	if kinds[len(kinds)-1] != EventFinished {
		t.Errorf("末事件 = %v, 期望 finished", kinds[len(kinds)-1])
	}
}

func TestRunSkipsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	chapters := testChapters()
	p := testParams(dir)

	// 预置第一章的产出文件
	existing := ChapterWAVPath(dir, p.SourcePath, 1, p.Voice, chapters[0].Title)
	if err := os.WriteFile(existing, []byte("已有内容"), 0644); err != nil {
		t.Fatal(err)
	}

	engine := &fakeEngine{}
	s := New(engine, nil, nil)
	results, err := s.Run(context.Background(), p, chapters)
	if err != nil {
		t.Fatalf("Run 失败: %v", err)
	}
	if !results[0].Skipped {
		t.Error("已存在文件的章节应被跳过")
	}
	if results[1].Skipped {
		t.Error("第二章不应被跳过")
	}

	// 跳过的章节不应触碰原文件
	data, _ := os.ReadFile(existing)
	if string(data) != "已有内容" {
		t.Error("跳过的章节覆盖了已有文件")
	}
}

func TestRunSkipsShortChapter(t *testing.T) {
	dir := t.TempDir()
	chapters := []book.Chapter{
		{Index: 1, Title: "空章", Text: "短", Selected: true},
	}
	engine := &fakeEngine{}
	s := New(engine, nil, nil)

	// 书名置空避免首章引言把文本撑长
	p := testParams(dir)
	p.BookTitle = ""
	results, err := s.Run(context.Background(), p, chapters)
	if err != nil {
		t.Fatalf("Run 失败: %v", err)
	}
	if !results[0].Skipped {
		t.Error("过短章节应被跳过")
	}
	if len(engine.calls) != 0 {
		t.Errorf("过短章节不应调用引擎, 调用了 %d 次", len(engine.calls))
	}
}

func TestRunChapterFailureIsRecoverable(t *testing.T) {
	dir := t.TempDir()
	engine := &fakeEngine{mute: true} // 引擎静音：所有章都拿不到音频
	s := New(engine, nil, nil)

	results, err := s.Run(context.Background(), testParams(dir), testChapters())
	if err != nil {
		t.Fatalf("单章失败不应中断整本书: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("结果数 = %d, 期望 2（失败章也要有记录）", len(results))
	}
	for _, r := range results {
		if !errors.Is(r.Err, ErrNoAudio) {
			t.Errorf("第 %d 章错误 = %v, 期望 ErrNoAudio", r.Index, r.Err)
		}
	}
}

func TestRunNoSelectedChapters(t *testing.T) {
	chapters := testChapters()
	for i := range chapters {
		chapters[i].Selected = false
	}
	s := New(&fakeEngine{}, nil, nil)
	if _, err := s.Run(context.Background(), testParams(t.TempDir()), chapters); err == nil {
		t.Error("没有选中章节时应报错")
	}
}

func TestChapterWAVPath(t *testing.T) {
	got := ChapterWAVPath("/out", "/books/my book.epub", 3, "voiceA", "Part One/Intro")
	want := filepath.Join("/out", "my book_chapter_3_voiceA_Part_One_Intro.wav")
	if got != want {
		t.Errorf("路径 = %q, 期望 %q", got, want)
	}
}

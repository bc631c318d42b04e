package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/iabetor/bookvoice/internal/database"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("打开数据库失败: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("数据库迁移失败: %v", err)
	}
	return New(db)
}

func sampleBook(path string) StagedBook {
	return StagedBook{
		Title:      "样例书",
		Author:     "样例作者",
		SourcePath: path,
		Chapters: []StagedChapter{
			{Number: 1, Title: "第一章", Text: "第一章内容", Selected: true},
			{Number: 2, Title: "第二章", Text: "第二章内容", Selected: false},
		},
	}
}

func TestAddStagedBookRoundTrip(t *testing.T) {
	s := newTestStore(t)

	id, err := s.AddStagedBook(sampleBook("/books/a.epub"))
	if err != nil {
		t.Fatalf("暂存失败: %v", err)
	}
	if id == 0 {
		t.Error("应返回非零 ID")
	}

	books, err := s.StagedBooks()
	if err != nil {
		t.Fatal(err)
	}
	if len(books) != 1 {
		t.Fatalf("书籍数 = %d, 期望 1", len(books))
	}
	b := books[0]
	if b.Title != "样例书" || b.Author != "样例作者" {
		t.Errorf("元数据不匹配: %+v", b)
	}
	if len(b.Chapters) != 2 {
		t.Fatalf("章节数 = %d, 期望 2", len(b.Chapters))
	}
	if b.Chapters[0].Number != 1 || b.Chapters[1].Number != 2 {
		t.Error("章节应按章节号升序")
	}
	if !b.Chapters[0].Selected || b.Chapters[1].Selected {
		t.Error("选中标记丢失")
	}
	if b.Chapters[0].Status != StatusPending {
		t.Errorf("默认状态 = %q, 期望 pending", b.Chapters[0].Status)
	}
}

func TestAddStagedBookDuplicatePath(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.AddStagedBook(sampleBook("/books/dup.epub")); err != nil {
		t.Fatal(err)
	}
	_, err := s.AddStagedBook(sampleBook("/books/dup.epub"))
	if !errors.Is(err, database.ErrConstraint) {
		t.Errorf("重复路径错误 = %v, 期望 ErrConstraint", err)
	}

	// 重复暂存不应留下半成品
	books, _ := s.StagedBooks()
	if len(books) != 1 {
		t.Errorf("书籍数 = %d, 期望仍为 1", len(books))
	}
}

func TestSetChapterSelected(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.AddStagedBook(sampleBook("/books/sel.epub")); err != nil {
		t.Fatal(err)
	}
	books, _ := s.StagedBooks()
	chID := books[0].Chapters[1].ID

	if err := s.SetChapterSelected(chID, true); err != nil {
		t.Fatal(err)
	}
	books, _ = s.StagedBooks()
	if !books[0].Chapters[1].Selected {
		t.Error("选中标记未更新")
	}
}

func queueEntry(title string, order ...QueuedChapter) QueueEntry {
	text := "章节正文内容"
	if len(order) == 0 {
		order = []QueuedChapter{{Title: "第一章", Order: 1, Text: &text}}
	}
	return QueueEntry{
		BookTitle: title,
		Settings:  Settings{Voice: "v", Speed: 1.0, Engine: "edge", OutputFolder: "/out"},
		Chapters:  order,
	}
}

func TestEnqueueOrderStrictlyIncreasing(t *testing.T) {
	s := newTestStore(t)

	idA, err := s.Enqueue(queueEntry("A"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Enqueue(queueEntry("B")); err != nil {
		t.Fatal(err)
	}

	entries, _ := s.QueueEntries()
	if len(entries) != 2 {
		t.Fatalf("条目数 = %d", len(entries))
	}
	if entries[0].Order >= entries[1].Order {
		t.Errorf("顺序应严格递增: %d, %d", entries[0].Order, entries[1].Order)
	}
	orderB := entries[1].Order

	// 删除队尾后再入队，顺序值不得回退复用
	if err := s.RemoveQueueEntry(entries[1].ID); err != nil {
		t.Fatal(err)
	}
	if err := s.RemoveQueueEntry(idA); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Enqueue(queueEntry("C")); err != nil {
		t.Fatal(err)
	}

	entries, _ = s.QueueEntries()
	if len(entries) != 1 {
		t.Fatalf("条目数 = %d", len(entries))
	}
	if entries[0].Order <= orderB {
		t.Errorf("删除后新顺序 %d 不得小于等于历史最大 %d", entries[0].Order, orderB)
	}
}

func TestEnqueueRejectsEmptyChapters(t *testing.T) {
	s := newTestStore(t)
	e := queueEntry("空")
	e.Chapters = nil
	if _, err := s.Enqueue(e); err == nil {
		t.Error("空章节条目应被拒绝")
	}
}

func TestQueueEntrySettingsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Enqueue(queueEntry("设置书")); err != nil {
		t.Fatal(err)
	}

	entries, _ := s.QueueEntries()
	got := entries[0].Settings
	if got.Voice != "v" || got.Speed != 1.0 || got.Engine != "edge" || got.OutputFolder != "/out" {
		t.Errorf("设置快照不匹配: %+v", got)
	}
	if entries[0].Status != StatusPending {
		t.Errorf("初始状态 = %q", entries[0].Status)
	}
}

func TestParseSettingsMalformed(t *testing.T) {
	got := parseSettings("{损坏的 JSON")
	if got != (Settings{}) {
		t.Errorf("损坏的设置应解析为零值: %+v", got)
	}
}

func TestQueuedChapterTextNullable(t *testing.T) {
	s := newTestStore(t)
	// staged_chapter_id 是外键，先建真实引用
	if _, err := s.AddStagedBook(sampleBook("/books/ref.epub")); err != nil {
		t.Fatal(err)
	}
	books, _ := s.StagedBooks()
	realID := books[0].Chapters[0].ID

	e := queueEntry("引用书", QueuedChapter{Title: "引用章", Order: 1, StagedChapterID: &realID})

	if _, err := s.Enqueue(e); err != nil {
		t.Fatal(err)
	}

	entries, _ := s.QueueEntries()
	ch := entries[0].Chapters[0]
	if ch.Text != nil {
		t.Error("未内联的章节文本应为 nil")
	}
	if ch.StagedChapterID == nil || *ch.StagedChapterID != realID {
		t.Error("暂存引用丢失")
	}

	text, err := s.StagedChapterText(realID)
	if err != nil {
		t.Fatal(err)
	}
	if text != "第一章内容" {
		t.Errorf("按引用取文本 = %q", text)
	}
}

func TestScheduleRoundTrip(t *testing.T) {
	s := newTestStore(t)

	if _, ok, err := s.ScheduleTime(); err != nil || ok {
		t.Errorf("初始应未设置定时, ok=%v err=%v", ok, err)
	}

	want := time.Now().Add(time.Hour).Truncate(time.Second)
	if err := s.SetScheduleTime(want); err != nil {
		t.Fatal(err)
	}
	got, ok, err := s.ScheduleTime()
	if err != nil || !ok {
		t.Fatalf("读取定时失败: ok=%v err=%v", ok, err)
	}
	if !got.Equal(want) {
		t.Errorf("定时时间 = %v, 期望 %v", got, want)
	}

	if err := s.ClearSchedule(); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.ScheduleTime(); ok {
		t.Error("清除后应为未设置")
	}
}

func TestScheduleCorruptValue(t *testing.T) {
	s := newTestStore(t)
	if err := s.SetSetting("next_scheduled_run", "不是时间戳"); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := s.ScheduleTime(); err != nil || ok {
		t.Errorf("损坏的定时值应视为未设置, ok=%v err=%v", ok, err)
	}
}

func TestSettingUpsert(t *testing.T) {
	s := newTestStore(t)

	if err := s.SetSetting("voice", "v1"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetSetting("voice", "v2"); err != nil {
		t.Fatal(err)
	}

	got, ok, err := s.Setting("voice")
	if err != nil || !ok {
		t.Fatalf("读设置失败: %v", err)
	}
	if got != "v2" {
		t.Errorf("设置值 = %q, 期望覆盖为 v2", got)
	}

	all, err := s.Settings()
	if err != nil {
		t.Fatal(err)
	}
	if all["voice"] != "v2" {
		t.Errorf("Settings() = %v", all)
	}
}

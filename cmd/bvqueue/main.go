package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/iabetor/bookvoice/internal/book"
	"github.com/iabetor/bookvoice/internal/config"
	"github.com/iabetor/bookvoice/internal/database"
	"github.com/iabetor/bookvoice/internal/logger"
	"github.com/iabetor/bookvoice/internal/store"
)

func main() {
	configPath := flag.String("config", "configs/bookvoice.yaml", "配置文件路径")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg = config.Default()
		} else {
			fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
			os.Exit(1)
		}
	}

	if err := logger.Init(logger.Config{Level: "warn"}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	db, err := database.Open(cfg.Store.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "打开数据库失败: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		fmt.Fprintf(os.Stderr, "数据库迁移失败: %v\n", err)
		os.Exit(1)
	}
	st := store.New(db)

	switch args[0] {
	case "stage":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "用法: bvqueue stage <文档路径>")
			os.Exit(1)
		}
		cmdStage(st, args[1])
	case "list":
		cmdList(st)
	case "enqueue":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "用法: bvqueue enqueue <暂存书 ID>")
			os.Exit(1)
		}
		cmdEnqueue(st, cfg, parseID(args[1]))
	case "enqueue-file":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "用法: bvqueue enqueue-file <文档路径>")
			os.Exit(1)
		}
		cmdEnqueueFile(st, cfg, args[1])
	case "remove":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "用法: bvqueue remove <队列条目 ID>")
			os.Exit(1)
		}
		cmdRemove(st, parseID(args[1]))
	case "select":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "用法: bvqueue select <章节 ID> <on|off>")
			os.Exit(1)
		}
		cmdSelect(st, parseID(args[1]), args[2] == "on")
	case "compile":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "用法: bvqueue compile <书 ID> <on|off>")
			os.Exit(1)
		}
		if err := st.SetFinalCompilation(parseID(args[1]), args[2] == "on"); err != nil {
			fail(err)
		}
		fmt.Printf("书 %s 纳入最终合集 = %v\n", args[1], args[2] == "on")
	case "schedule":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "用法: bvqueue schedule <+30m | 2026-01-02T15:04:05>")
			os.Exit(1)
		}
		cmdSchedule(st, args[1])
	case "schedule-clear":
		if err := st.ClearSchedule(); err != nil {
			fail(err)
		}
		fmt.Println("定时运行已清除")
	default:
		fmt.Fprintf(os.Stderr, "未知命令: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "BookVoice 队列管理工具")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "用法: bvqueue [-config <path>] <command> [args]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "命令:")
	fmt.Fprintln(os.Stderr, "  stage <文档>          解析文档并暂存，供以后反复入队")
	fmt.Fprintln(os.Stderr, "  list                  列出暂存书籍和当前队列")
	fmt.Fprintln(os.Stderr, "  enqueue <书 ID>       把暂存书的选中章节加入队列（按引用）")
	fmt.Fprintln(os.Stderr, "  enqueue-file <文档>   解析文档并直接入队（文本内联）")
	fmt.Fprintln(os.Stderr, "  remove <条目 ID>      从队列删除条目")
	fmt.Fprintln(os.Stderr, "  select <章节 ID> on|off  切换暂存章节的选中标记")
	fmt.Fprintln(os.Stderr, "  compile <书 ID> on|off   切换暂存书的最终合集标记")
	fmt.Fprintln(os.Stderr, "  schedule <时间>       设置定时运行（+30m 或 RFC3339）")
	fmt.Fprintln(os.Stderr, "  schedule-clear        清除定时运行")
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "%v\n", err)
	os.Exit(1)
}

func parseID(s string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "非法 ID: %s\n", s)
		os.Exit(1)
	}
	return id
}

func cmdStage(st *store.Store, path string) {
	doc, err := book.ParseFile(path)
	if err != nil {
		fail(err)
	}
	n := book.SelectGoodChapters(doc.Chapters, nil)

	staged := store.StagedBook{
		Title:      doc.Title,
		Author:     doc.Author,
		SourcePath: path,
	}
	for _, ch := range doc.Chapters {
		staged.Chapters = append(staged.Chapters, store.StagedChapter{
			Number:   ch.Index,
			Title:    ch.Title,
			Text:     ch.Text,
			Selected: ch.Selected,
		})
	}

	id, err := st.AddStagedBook(staged)
	if err != nil {
		if errors.Is(err, database.ErrConstraint) {
			fmt.Fprintf(os.Stderr, "该文档已暂存过: %s\n", path)
			os.Exit(1)
		}
		fail(err)
	}
	fmt.Printf("已暂存《%s》(ID %d): %d 章，选中 %d 章\n", doc.Title, id, len(doc.Chapters), n)
}

func cmdList(st *store.Store) {
	books, err := st.StagedBooks()
	if err != nil {
		fail(err)
	}
	fmt.Printf("暂存书籍 (%d):\n", len(books))
	for _, b := range books {
		selected := 0
		for _, ch := range b.Chapters {
			if ch.Selected {
				selected++
			}
		}
		fmt.Printf("  [%d] 《%s》 %s — %d 章（选中 %d），%s\n",
			b.ID, b.Title, b.Author, len(b.Chapters), selected, b.SourcePath)
		for _, ch := range b.Chapters {
			mark := " "
			if ch.Selected {
				mark = "*"
			}
			fmt.Printf("      %s #%d (%d) %s [%s]\n", mark, ch.Number, ch.ID, ch.Title, ch.Status)
		}
	}

	entries, err := st.QueueEntries()
	if err != nil {
		fail(err)
	}
	fmt.Printf("\n合成队列 (%d):\n", len(entries))
	for _, e := range entries {
		fmt.Printf("  [%d] 顺序 %d 《%s》 %s — %d 章，语音 %s，输出 %s\n",
			e.ID, e.Order, e.BookTitle, e.Status, len(e.Chapters),
			e.Settings.Voice, e.Settings.OutputFolder)
	}

	if t, ok, err := st.ScheduleTime(); err == nil && ok {
		fmt.Printf("\n定时运行: %s\n", t.Format("2006-01-02 15:04:05"))
	}
}

// settingsFrom 用全局配置生成条目的设置快照。
func settingsFrom(cfg *config.Config) store.Settings {
	return store.Settings{
		Voice:          cfg.TTS.Voice,
		Speed:          cfg.TTS.Speed,
		Engine:         cfg.TTS.Engine,
		OutputFolder:   cfg.Synth.OutputFolder,
		AssemblyMethod: store.AssemblyM4B,
	}
}

// cmdEnqueue 把暂存书的选中章节按引用入队，文本留在暂存表里。
func cmdEnqueue(st *store.Store, cfg *config.Config, bookID int64) {
	books, err := st.StagedBooks()
	if err != nil {
		fail(err)
	}
	var target *store.StagedBook
	for i := range books {
		if books[i].ID == bookID {
			target = &books[i]
			break
		}
	}
	if target == nil {
		fmt.Fprintf(os.Stderr, "暂存书 %d 不存在\n", bookID)
		os.Exit(1)
	}

	entry := store.QueueEntry{
		StagedBookID: &target.ID,
		BookTitle:    target.Title,
		SourcePath:   target.SourcePath,
		Settings:     settingsFrom(cfg),
	}
	order := 1
	for _, ch := range target.Chapters {
		if !ch.Selected {
			continue
		}
		chID := ch.ID
		entry.Chapters = append(entry.Chapters, store.QueuedChapter{
			StagedChapterID: &chID,
			Title:           ch.Title,
			Order:           order,
		})
		order++
	}

	id, err := st.Enqueue(entry)
	if err != nil {
		fail(err)
	}
	fmt.Printf("已入队《%s》(条目 %d): %d 章\n", target.Title, id, len(entry.Chapters))
}

// cmdEnqueueFile 临时选择直接入队：章节文本内联存入队列。
func cmdEnqueueFile(st *store.Store, cfg *config.Config, path string) {
	doc, err := book.ParseFile(path)
	if err != nil {
		fail(err)
	}
	book.SelectGoodChapters(doc.Chapters, nil)

	entry := store.QueueEntry{
		BookTitle:  doc.Title,
		SourcePath: path,
		Settings:   settingsFrom(cfg),
	}
	order := 1
	for _, ch := range doc.Chapters {
		if !ch.Selected {
			continue
		}
		text := ch.Text
		entry.Chapters = append(entry.Chapters, store.QueuedChapter{
			Title: ch.Title,
			Order: order,
			Text:  &text,
		})
		order++
	}

	id, err := st.Enqueue(entry)
	if err != nil {
		fail(err)
	}
	fmt.Printf("已入队《%s》(条目 %d): %d 章\n", doc.Title, id, len(entry.Chapters))
}

func cmdRemove(st *store.Store, itemID int64) {
	if err := st.RemoveQueueEntry(itemID); err != nil {
		fail(err)
	}
	fmt.Printf("已删除条目 %d\n", itemID)
}

func cmdSelect(st *store.Store, chapterID int64, on bool) {
	if err := st.SetChapterSelected(chapterID, on); err != nil {
		fail(err)
	}
	fmt.Printf("章节 %d 选中标记 = %v\n", chapterID, on)
}

// cmdSchedule 支持两种写法：相对时长（+30m、+2h）或 RFC3339 绝对时间。
func cmdSchedule(st *store.Store, when string) {
	var t time.Time
	if strings.HasPrefix(when, "+") {
		d, err := time.ParseDuration(when[1:])
		if err != nil {
			fmt.Fprintf(os.Stderr, "非法时长: %s\n", when)
			os.Exit(1)
		}
		t = time.Now().Add(d)
	} else {
		var err error
		t, err = time.Parse(time.RFC3339, when)
		if err != nil {
			fmt.Fprintf(os.Stderr, "非法时间（需要 +30m 或 RFC3339）: %s\n", when)
			os.Exit(1)
		}
	}

	if err := st.SetScheduleTime(t); err != nil {
		fail(err)
	}
	fmt.Printf("定时运行已设置: %s\n", t.Format("2006-01-02 15:04:05"))
}

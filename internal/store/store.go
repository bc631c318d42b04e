package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/iabetor/bookvoice/internal/database"
	"github.com/iabetor/bookvoice/internal/logger"
)

// scheduleKey 是定时运行时间在 user_settings 中的键。
const scheduleKey = "next_scheduled_run"

// Store 提供暂存书籍、合成队列、用户设置的持久化操作。
// 数据库是唯一可信来源：所有写操作先落库，内存副本只作为读缓存。
type Store struct {
	db *database.DB
}

// New 创建 Store。
func New(db *database.DB) *Store {
	return &Store{db: db}
}

// ---- 暂存书籍 ----

// AddStagedBook 原子地插入一本暂存书及其全部章节。
// source_path 重复时返回 database.ErrConstraint，且不留下半成品记录。
func (s *Store) AddStagedBook(book StagedBook) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("开启事务失败: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO staged_books (title, author, source_path, output_folder, final_compilation)
		 VALUES (?, ?, ?, ?, ?)`,
		book.Title, book.Author, book.SourcePath, book.OutputFolder, book.FinalCompilation,
	)
	if err != nil {
		return 0, database.WrapErr(err)
	}
	bookID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, ch := range book.Chapters {
		if _, err := tx.Exec(
			`INSERT INTO staged_chapters (book_id, chapter_number, title, text_content, is_selected, status)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			bookID, ch.Number, ch.Title, ch.Text, ch.Selected, orPending(ch.Status),
		); err != nil {
			return 0, database.WrapErr(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	logger.Infof("[store] 已暂存书籍: %s（%d 章）", book.Title, len(book.Chapters))
	return bookID, nil
}

// StagedBooks 列出全部暂存书籍及其章节，书按添加时间倒序，章按章节号升序。
func (s *Store) StagedBooks() ([]StagedBook, error) {
	rows, err := s.db.Query(
		`SELECT id, title, author, source_path, output_folder, final_compilation, added_at
		 FROM staged_books ORDER BY added_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var books []StagedBook
	index := make(map[int64]int)
	for rows.Next() {
		var b StagedBook
		if err := rows.Scan(&b.ID, &b.Title, &b.Author, &b.SourcePath,
			&b.OutputFolder, &b.FinalCompilation, &b.AddedAt); err != nil {
			return nil, err
		}
		index[b.ID] = len(books)
		books = append(books, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(books) == 0 {
		return books, nil
	}

	chRows, err := s.db.Query(
		`SELECT id, book_id, chapter_number, title, text_content, is_selected, status
		 FROM staged_chapters ORDER BY book_id, chapter_number ASC`)
	if err != nil {
		return nil, err
	}
	defer chRows.Close()

	for chRows.Next() {
		var ch StagedChapter
		if err := chRows.Scan(&ch.ID, &ch.BookID, &ch.Number, &ch.Title,
			&ch.Text, &ch.Selected, &ch.Status); err != nil {
			return nil, err
		}
		if i, ok := index[ch.BookID]; ok {
			books[i].Chapters = append(books[i].Chapters, ch)
		}
	}
	return books, chRows.Err()
}

// StagedBook 按 ID 取一本暂存书（不含章节文本之外的任何裁剪）。
// 不存在时返回 (nil, nil)。
func (s *Store) StagedBook(id int64) (*StagedBook, error) {
	var b StagedBook
	err := s.db.QueryRow(
		`SELECT id, title, author, source_path, output_folder, final_compilation, added_at
		 FROM staged_books WHERE id = ?`, id).
		Scan(&b.ID, &b.Title, &b.Author, &b.SourcePath, &b.OutputFolder, &b.FinalCompilation, &b.AddedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// SetChapterSelected 切换暂存章节的选中标记。
func (s *Store) SetChapterSelected(chapterID int64, selected bool) error {
	_, err := s.db.Exec(`UPDATE staged_chapters SET is_selected = ? WHERE id = ?`, selected, chapterID)
	return err
}

// SetFinalCompilation 切换暂存书的"纳入最终合集"标记。
func (s *Store) SetFinalCompilation(bookID int64, v bool) error {
	_, err := s.db.Exec(`UPDATE staged_books SET final_compilation = ? WHERE id = ?`, v, bookID)
	return err
}

// UpdateStagedChapterStatus 更新暂存章节状态。
func (s *Store) UpdateStagedChapterStatus(chapterID int64, status string) error {
	_, err := s.db.Exec(`UPDATE staged_chapters SET status = ? WHERE id = ?`, status, chapterID)
	return err
}

// StagedChapterText 按需取暂存章节的文本。
// 队列章节可以只存引用，避免大段文本在两张表里重复。
func (s *Store) StagedChapterText(chapterID int64) (string, error) {
	var text string
	err := s.db.QueryRow(`SELECT text_content FROM staged_chapters WHERE id = ?`, chapterID).Scan(&text)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("暂存章节 %d 不存在", chapterID)
	}
	return text, err
}

// ---- 合成队列 ----

// Enqueue 把一个条目连同章节追加到队列尾部。
// 顺序值来自持久化计数器，在同一事务内读取并回写：
// 即使队尾条目被删除，后续分配的顺序值也继续递增，不会回退复用。
func (s *Store) Enqueue(entry QueueEntry) (int64, error) {
	if len(entry.Chapters) == 0 {
		return 0, fmt.Errorf("队列条目必须至少包含一章")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("开启事务失败: %w", err)
	}
	defer tx.Rollback()

	order, err := nextQueueOrder(tx)
	if err != nil {
		return 0, err
	}

	var bookID interface{}
	if entry.StagedBookID != nil {
		bookID = *entry.StagedBookID
	}
	res, err := tx.Exec(
		`INSERT INTO synthesis_queue (staged_book_id, book_title, source_path, settings, status, queue_order)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		bookID, entry.BookTitle, entry.SourcePath, entry.Settings.marshal(), StatusPending, order,
	)
	if err != nil {
		return 0, database.WrapErr(err)
	}
	itemID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, ch := range entry.Chapters {
		var stagedID interface{}
		if ch.StagedChapterID != nil {
			stagedID = *ch.StagedChapterID
		}
		var text interface{}
		if ch.Text != nil {
			text = *ch.Text
		}
		if _, err := tx.Exec(
			`INSERT INTO queued_chapters (queue_item_id, staged_chapter_id, chapter_title, chapter_order, text_content)
			 VALUES (?, ?, ?, ?, ?)`,
			itemID, stagedID, ch.Title, ch.Order, text,
		); err != nil {
			return 0, database.WrapErr(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	logger.Infof("[store] 已入队: %s（顺序 %d，%d 章）", entry.BookTitle, order, len(entry.Chapters))
	return itemID, nil
}

// QueueEntries 按队列顺序列出全部条目及其章节。
func (s *Store) QueueEntries() ([]QueueEntry, error) {
	rows, err := s.db.Query(
		`SELECT id, staged_book_id, book_title, source_path, settings, status, queue_order, date_added
		 FROM synthesis_queue ORDER BY queue_order ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []QueueEntry
	index := make(map[int64]int)
	for rows.Next() {
		var e QueueEntry
		var bookID sql.NullInt64
		var sourcePath sql.NullString
		var settings string
		if err := rows.Scan(&e.ID, &bookID, &e.BookTitle, &sourcePath,
			&settings, &e.Status, &e.Order, &e.DateAdded); err != nil {
			return nil, err
		}
		if bookID.Valid {
			v := bookID.Int64
			e.StagedBookID = &v
		}
		e.SourcePath = sourcePath.String
		e.Settings = parseSettings(settings)
		index[e.ID] = len(entries)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return entries, nil
	}

	chRows, err := s.db.Query(
		`SELECT id, queue_item_id, staged_chapter_id, chapter_title, chapter_order, text_content
		 FROM queued_chapters ORDER BY queue_item_id, chapter_order ASC`)
	if err != nil {
		return nil, err
	}
	defer chRows.Close()

	for chRows.Next() {
		var ch QueuedChapter
		var stagedID sql.NullInt64
		var text sql.NullString
		if err := chRows.Scan(&ch.ID, &ch.QueueItemID, &stagedID, &ch.Title, &ch.Order, &text); err != nil {
			return nil, err
		}
		if stagedID.Valid {
			v := stagedID.Int64
			ch.StagedChapterID = &v
		}
		if text.Valid {
			v := text.String
			ch.Text = &v
		}
		if i, ok := index[ch.QueueItemID]; ok {
			entries[i].Chapters = append(entries[i].Chapters, ch)
		}
	}
	return entries, chRows.Err()
}

// UpdateQueueStatus 更新队列条目状态。
func (s *Store) UpdateQueueStatus(itemID int64, status string) error {
	_, err := s.db.Exec(`UPDATE synthesis_queue SET status = ? WHERE id = ?`, status, itemID)
	return err
}

// RemoveQueueEntry 按 ID 删除队列条目，级联删除其章节。
func (s *Store) RemoveQueueEntry(itemID int64) error {
	_, err := s.db.Exec(`DELETE FROM synthesis_queue WHERE id = ?`, itemID)
	return err
}

// ---- 定时运行 ----

// SetScheduleTime 设置下一次定时运行的时间。
func (s *Store) SetScheduleTime(t time.Time) error {
	return s.SetSetting(scheduleKey, strconv.FormatInt(t.Unix(), 10))
}

// ScheduleTime 读取定时运行时间。ok=false 表示未设置。
func (s *Store) ScheduleTime() (time.Time, bool, error) {
	raw, ok, err := s.Setting(scheduleKey)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ts <= 0 {
		// 存储值损坏，视为未设置
		return time.Time{}, false, nil
	}
	return time.Unix(ts, 0), true, nil
}

// ClearSchedule 清除定时运行时间。清除是独立操作，与"未设置"可区分地落库。
func (s *Store) ClearSchedule() error {
	_, err := s.db.Exec(`DELETE FROM user_settings WHERE key = ?`, scheduleKey)
	return err
}

// ---- 用户设置 ----

// SetSetting 写入一个标量设置（upsert）。
func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO user_settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value,
	)
	return err
}

// Setting 读取一个标量设置。ok=false 表示该键不存在。
func (s *Store) Setting(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM user_settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Settings 列出全部标量设置。
func (s *Store) Settings() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key, value FROM user_settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		settings[k] = v
	}
	return settings, rows.Err()
}

// orderSeqKey 是队列顺序计数器在 user_settings 中的键。
const orderSeqKey = "queue_order_seq"

// nextQueueOrder 在事务内分配下一个队列顺序值并回写计数器。
// 计数器只增不减，已删除条目的顺序值不会被复用。
func nextQueueOrder(tx *sql.Tx) (int64, error) {
	var raw string
	var last int64
	err := tx.QueryRow(`SELECT value FROM user_settings WHERE key = ?`, orderSeqKey).Scan(&raw)
	switch {
	case err == sql.ErrNoRows:
		last = 0
	case err != nil:
		return 0, err
	default:
		last, _ = strconv.ParseInt(raw, 10, 64)
	}

	// 计数器缺失或损坏时，退回到现有最大顺序值，避免唯一约束冲突
	var maxOrder sql.NullInt64
	if err := tx.QueryRow(`SELECT MAX(queue_order) FROM synthesis_queue`).Scan(&maxOrder); err != nil {
		return 0, err
	}
	if maxOrder.Int64 > last {
		last = maxOrder.Int64
	}

	next := last + 1
	if _, err := tx.Exec(
		`INSERT INTO user_settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		orderSeqKey, strconv.FormatInt(next, 10),
	); err != nil {
		return 0, err
	}
	return next, nil
}

func orPending(status string) string {
	if status == "" {
		return StatusPending
	}
	return status
}

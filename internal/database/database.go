package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/iabetor/bookvoice/internal/logger"
	_ "modernc.org/sqlite"
)

// ErrConstraint 表示违反数据库约束（唯一键冲突、外键缺失）。
// 调用方用 errors.Is 区分约束冲突和一般 I/O 错误，
// 前者不应重试，后者可能是暂时性故障。
var ErrConstraint = errors.New("数据库约束冲突")

// DB 是统一的 SQLite 数据库连接。
// 暂存书籍、合成队列和用户设置共享同一个数据库文件。
type DB struct {
	*sql.DB
	path string
}

// Open 打开或创建数据库。
// dbPath: 数据库文件路径，如果为空则使用默认路径 ~/.bookvoice/bookvoice.db
func Open(dbPath string) (*DB, error) {
	if dbPath == "" {
		home, _ := os.UserHomeDir()
		if home != "" {
			dbPath = filepath.Join(home, ".bookvoice", "bookvoice.db")
		} else {
			dbPath = "./bookvoice.db"
		}
	}

	// 确保目录存在
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建数据库目录失败: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	// 设置 WAL 模式（更好的并发性能）
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("设置 WAL 模式失败: %w", err)
	}

	// 启用外键约束
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("启用外键约束失败: %w", err)
	}

	logger.Infof("[database] 数据库已打开: %s", dbPath)

	return &DB{DB: db, path: dbPath}, nil
}

// Path 返回数据库文件路径。
func (db *DB) Path() string {
	return db.path
}

// Migrate 运行数据库迁移。
func (db *DB) Migrate() error {
	migrations := []string{
		// 暂存书籍表：source_path 唯一，重复暂存同一本书会被拒绝
		`CREATE TABLE IF NOT EXISTS staged_books (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			author TEXT DEFAULT '',
			source_path TEXT NOT NULL UNIQUE,
			output_folder TEXT DEFAULT '',
			final_compilation BOOLEAN DEFAULT 0,
			added_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		// 暂存章节表
		`CREATE TABLE IF NOT EXISTS staged_chapters (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			book_id INTEGER NOT NULL REFERENCES staged_books(id) ON DELETE CASCADE,
			chapter_number INTEGER NOT NULL,
			title TEXT DEFAULT '',
			text_content TEXT DEFAULT '',
			is_selected BOOLEAN DEFAULT 1,
			status TEXT DEFAULT 'pending'
		)`,
		// 合成队列表：queue_order 严格递增
		`CREATE TABLE IF NOT EXISTS synthesis_queue (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			staged_book_id INTEGER REFERENCES staged_books(id) ON DELETE SET NULL,
			book_title TEXT NOT NULL,
			source_path TEXT,
			settings TEXT NOT NULL DEFAULT '{}',
			status TEXT NOT NULL DEFAULT 'pending',
			queue_order INTEGER NOT NULL UNIQUE,
			date_added DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		// 队列章节表：text_content 可为 NULL，按 staged_chapter_id 按需取文本
		`CREATE TABLE IF NOT EXISTS queued_chapters (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			queue_item_id INTEGER NOT NULL REFERENCES synthesis_queue(id) ON DELETE CASCADE,
			staged_chapter_id INTEGER REFERENCES staged_chapters(id) ON DELETE SET NULL,
			chapter_title TEXT NOT NULL DEFAULT '',
			chapter_order INTEGER NOT NULL,
			text_content TEXT
		)`,
		// 用户设置表：voice、speed、custom_rate、next_scheduled_run 等标量
		`CREATE TABLE IF NOT EXISTS user_settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("数据库迁移失败: %w", err)
		}
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_staged_chapters_book_id ON staged_chapters(book_id)`,
		`CREATE INDEX IF NOT EXISTS idx_queued_chapters_item_id ON queued_chapters(queue_item_id)`,
		`CREATE INDEX IF NOT EXISTS idx_synthesis_queue_order ON synthesis_queue(queue_order)`,
	}

	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			logger.Warnf("[database] 创建索引失败: %v", err)
		}
	}

	logger.Info("[database] 数据库迁移完成")
	return nil
}

// Close 关闭数据库连接。
func (db *DB) Close() error {
	if db.DB != nil {
		return db.DB.Close()
	}
	return nil
}

// WrapErr 将底层错误归类：约束冲突包装为 ErrConstraint，其余原样返回。
func WrapErr(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "constraint failed") || strings.Contains(msg, "constraint violation") {
		return fmt.Errorf("%w: %v", ErrConstraint, err)
	}
	return err
}

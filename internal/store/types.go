package store

import (
	"encoding/json"
	"time"
)

// 队列条目与章节的生命周期状态。
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusError      = "error"
	StatusDone       = "done"
)

// StagedBook 暂存书籍：为以后反复批量使用而固定下来的一本书。
// source_path 唯一，重复暂存同一路径会被拒绝。
type StagedBook struct {
	ID               int64
	Title            string
	Author           string
	SourcePath       string
	OutputFolder     string
	FinalCompilation bool
	AddedAt          time.Time
	Chapters         []StagedChapter
}

// StagedChapter 暂存章节，按 Number 在书内排序。
type StagedChapter struct {
	ID       int64
	BookID   int64
	Number   int
	Title    string
	Text     string
	Selected bool
	Status   string
}

// 条目产物的组装方式。
const (
	// AssemblyM4B 章节音频拼接编码为带目录的 M4B（默认）。
	AssemblyM4B = "m4b"
	// AssemblyWAV 只保留章节 WAV，不做组装。
	AssemblyWAV = "wav"
)

// Settings 队列条目的合成参数快照，以 JSON 存入 settings 列。
type Settings struct {
	Voice          string  `json:"voice"`
	Speed          float64 `json:"speed"`
	Engine         string  `json:"engine"`
	OutputFolder   string  `json:"output_folder"`
	AssemblyMethod string  `json:"assembly_method"`
}

// marshal 序列化为存储用的 JSON 字符串。
func (s Settings) marshal() string {
	data, err := json.Marshal(s)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// parseSettings 反序列化设置快照，格式损坏时返回零值而不是报错。
func parseSettings(raw string) Settings {
	var s Settings
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return Settings{}
	}
	return s
}

// QueueEntry 一个批量合成任务：有序的章节集合加一份设置快照。
type QueueEntry struct {
	ID           int64
	StagedBookID *int64 // 指向 staged_books，可为空（临时选择入队时）
	BookTitle    string
	SourcePath   string // 原始输入路径，运行时用于恢复标题/作者/封面
	Settings     Settings
	Status       string
	Order        int64 // 严格递增的队列顺序
	DateAdded    time.Time
	Chapters     []QueuedChapter
}

// QueuedChapter 队列条目内的一章。
// Text 非 nil 时文本内联存储；否则按 StagedChapterID 按需取。
type QueuedChapter struct {
	ID              int64
	QueueItemID     int64
	StagedChapterID *int64
	Title           string
	Order           int
	Text            *string
}

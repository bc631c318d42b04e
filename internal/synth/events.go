package synth

import "time"

// EventKind 合成过程事件类型，集合封闭。
type EventKind string

const (
	// EventStarted 整本书的合成开始。
	EventStarted EventKind = "started"
	// EventChapterStarted 某章开始合成。
	EventChapterStarted EventKind = "chapter_started"
	// EventChapterFinished 某章合成完成（含跳过与失败，见 Err 字段）。
	EventChapterFinished EventKind = "chapter_finished"
	// EventProgress 进度更新。
	EventProgress EventKind = "progress"
	// EventFinished 整本书合成结束。
	EventFinished EventKind = "finished"
)

// Event 合成过程中上报给观察者的一次状态变化。
// 字段按事件类型选择性填充。
type Event struct {
	Kind         EventKind
	BookTitle    string
	ChapterIndex int    // chapter_* 事件：1 起始的章节序号
	ChapterTitle string // chapter_* 事件
	OutputPath   string // chapter_finished：产出的 WAV 路径
	Skipped      bool   // chapter_finished：因已存在或文本过短被跳过
	Percent      int    // progress：0–100
	Processed    int    // progress：已处理字符数
	Total        int    // progress：总字符数
	ETA          time.Duration
	Err          error // chapter_finished / finished：失败原因
}

// Observer 接收合成事件。实现必须可以安全地被合成协程调用。
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc 把函数适配为 Observer。
type ObserverFunc func(Event)

// OnEvent 实现 Observer。
func (f ObserverFunc) OnEvent(e Event) { f(e) }

// emit 向观察者发送事件，观察者为 nil 时静默丢弃。
func emit(obs Observer, e Event) {
	if obs != nil {
		obs.OnEvent(e)
	}
}

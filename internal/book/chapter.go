package book

// Origin 标记章节文本的来源。
// 不管章节来自解析的文档、暂存库还是内联文本，
// 下游的合成与组装都只消费这一种统一形状。
type Origin int

const (
	// FromDocument — 文档解析直接产出。
	FromDocument Origin = iota
	// FromStore — 文本存在暂存库里，按 StagedID 取回。
	FromStore
	// Inline — 文本随队列条目内联存储。
	Inline
)

var originNames = [...]string{"document", "store", "inline"}

func (o Origin) String() string {
	if int(o) < len(originNames) {
		return originNames[o]
	}
	return "unknown"
}

// 章节生命周期状态。
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusDone       = "done"
	StatusError      = "error"
)

// Chapter 一个可朗读的文档单元。
// Index 在一次任务内稳定，用于事件上报和输出文件命名。
type Chapter struct {
	Index    int
	Title    string
	Text     string
	Selected bool
	Status   string
	Origin   Origin
	// StagedID 在 Origin == FromStore 时指向 staged_chapters 记录。
	StagedID int64
}

// Document 文档解析器产出的形状：有序章节加可选的封面和元数据。
type Document struct {
	Title    string
	Author   string
	Cover    []byte // 封面图片原始字节，可为空
	Chapters []Chapter
}

// Parser 文档解析协作方。核心只消费 Document 形状，不关心源格式。
type Parser interface {
	Parse(path string) (*Document, error)
}

package book

import (
	"regexp"
	"strings"

	"github.com/iabetor/bookvoice/internal/logger"
)

// 章节内部名常见的编号形式：part_3、split_12、ch_7、chap05 等。
var chapterNameRe = regexp.MustCompile(`(?i)(part|split|ch|chap)_?\d{1,3}`)

// LooksLikeChapter 判断一个章节是否像正文章节。
// 依据两点：文本长度超过 100 字符，且内部名暗示它是章节
// （包含 "chapter" 字样或形如 part_N / split_N / ch_N 的编号）。
func LooksLikeChapter(ch Chapter, name string) bool {
	if len(ch.Text) <= 100 {
		return false
	}
	lower := strings.ToLower(name)
	if strings.Contains(lower, "chapter") {
		return true
	}
	return chapterNameRe.MatchString(lower)
}

// SelectGoodChapters 启发式地挑出值得朗读的章节并打上选中标记。
// 先按严格条件筛选；一个都没命中时退而求其次，
// 选中所有文本超过 10 字符的章节，避免把整本书筛空。
// 返回被选中的章节数。
func SelectGoodChapters(chapters []Chapter, names []string) int {
	selected := 0
	for i := range chapters {
		name := chapters[i].Title
		if i < len(names) {
			name = names[i]
		}
		if LooksLikeChapter(chapters[i], name) {
			chapters[i].Selected = true
			selected++
		} else {
			chapters[i].Selected = false
		}
	}

	if selected == 0 {
		logger.Warnf("[book] 启发式未命中任何章节，回退为选中所有非空章节")
		for i := range chapters {
			if len(chapters[i].Text) > 10 {
				chapters[i].Selected = true
				selected++
			}
		}
	}

	return selected
}

// SelectedChapters 返回当前被选中的章节子集，保持原有顺序。
func SelectedChapters(chapters []Chapter) []Chapter {
	out := make([]Chapter, 0, len(chapters))
	for _, ch := range chapters {
		if ch.Selected {
			out = append(out, ch)
		}
	}
	return out
}

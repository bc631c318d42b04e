package book

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/iabetor/bookvoice/internal/logger"
)

// 纯文本/Markdown 的章节标题行：# 开头或 "Chapter N" / "第N章" 开头。
var headingRe = regexp.MustCompile(`^(#{1,3}\s+.+|Chapter\s+\d+.*|第.+[章回节].*)$`)

// TextParser 解析纯文本和 Markdown 文件。
// 标题行切分章节；没有任何标题行时整个文件作为单章。
type TextParser struct{}

// Parse 实现 Parser 接口。
func (TextParser) Parse(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取文档 %s 失败: %w", path, err)
	}

	base := filepath.Base(path)
	title := strings.TrimSuffix(base, filepath.Ext(base))
	doc := &Document{Title: title}

	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")

	var cur *Chapter
	flush := func() {
		if cur == nil {
			return
		}
		cur.Text = strings.TrimSpace(cur.Text)
		doc.Chapters = append(doc.Chapters, *cur)
		cur = nil
	}

	for _, line := range lines {
		if headingRe.MatchString(strings.TrimSpace(line)) {
			flush()
			cur = &Chapter{
				Index:  len(doc.Chapters) + 1,
				Title:  strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "# ")),
				Origin: FromDocument,
				Status: StatusPending,
			}
			continue
		}
		if cur == nil {
			// 标题行之前的内容作为无标题首章
			cur = &Chapter{
				Index:  1,
				Title:  title,
				Origin: FromDocument,
				Status: StatusPending,
			}
		}
		cur.Text += line + "\n"
	}
	flush()

	if len(doc.Chapters) == 0 {
		return nil, fmt.Errorf("文档 %s 没有可朗读的内容", path)
	}

	logger.Infof("[book] 解析 %s: %d 章", base, len(doc.Chapters))
	return doc, nil
}

// ParseFile 按扩展名选择解析器。当前支持 .txt 和 .md。
func ParseFile(path string) (*Document, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".markdown":
		return TextParser{}.Parse(path)
	default:
		return nil, fmt.Errorf("不支持的文档格式: %s", filepath.Ext(path))
	}
}

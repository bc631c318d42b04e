package m4b

import (
	"strings"
	"testing"
)

func TestFormatIndexAccumulation(t *testing.T) {
	// 时长 10s、5s、20s，起止点按毫秒累加
	content := string(formatIndex("书名", "作者",
		[]string{"第一章", "第二章", "第三章"},
		[]int64{10000, 5000, 20000}))

	if !strings.HasPrefix(content, ";FFMETADATA1\n") {
		t.Error("目录应以 ;FFMETADATA1 开头")
	}
	if !strings.Contains(content, "title=书名\nartist=作者") {
		t.Error("目录应包含书名和作者元数据")
	}

	wantBlocks := []string{
		"[CHAPTER]\nTIMEBASE=1/1000\nSTART=0\nEND=10000\ntitle=第一章",
		"[CHAPTER]\nTIMEBASE=1/1000\nSTART=10000\nEND=15000\ntitle=第二章",
		"[CHAPTER]\nTIMEBASE=1/1000\nSTART=15000\nEND=35000\ntitle=第三章",
	}
	for _, block := range wantBlocks {
		if !strings.Contains(content, block) {
			t.Errorf("缺少章节块:\n%s\n完整内容:\n%s", block, content)
		}
	}
}

func TestFormatIndexEmpty(t *testing.T) {
	content := string(formatIndex("书", "人", nil, nil))
	if strings.Contains(content, "[CHAPTER]") {
		t.Error("没有章节时不应有 [CHAPTER] 块")
	}
}

func TestTailTruncates(t *testing.T) {
	long := strings.Repeat("line\n", 20) + "最后一行"
	got := tail(long)
	if !strings.HasSuffix(got, "最后一行") {
		t.Errorf("tail 应保留末尾: %q", got)
	}
	if n := len(strings.Split(got, "\n")); n > 5 {
		t.Errorf("tail 行数 = %d, 期望不超过 5", n)
	}
}

package synth

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestExtractSentence(t *testing.T) {
	s, rest, found := extractSentence("第一句。第二句。")
	if !found {
		t.Fatal("应找到句子")
	}
	if s != "第一句。" {
		t.Errorf("句子 = %q, 期望 %q", s, "第一句。")
	}
	if rest != "第二句。" {
		t.Errorf("剩余 = %q, 期望 %q", rest, "第二句。")
	}
}

func TestExtractSentenceNoEnder(t *testing.T) {
	_, rest, found := extractSentence("没有结束符的文本")
	if found {
		t.Error("无结束符时不应找到句子")
	}
	if rest != "没有结束符的文本" {
		t.Errorf("剩余 = %q", rest)
	}
}

func TestMergeSentencesLimit(t *testing.T) {
	text := strings.Repeat("这是一个句子。", 50)
	chunks := mergeSentences(text, 100)
	if len(chunks) == 0 {
		t.Fatal("应产出至少一个段")
	}
	for i, c := range chunks {
		n := utf8.RuneCountInString(c)
		// 单句超限独立成段时允许略超
		if n > 110 {
			t.Errorf("段 %d 长度 %d 超限: %q", i, n, c)
		}
	}
}

func TestMergeSentencesTail(t *testing.T) {
	// 没有结束符的尾部也要进入输出，不能丢字
	chunks := mergeSentences("完整句。尾巴没有结束符", 100)
	joined := strings.Join(chunks, "")
	if !strings.Contains(joined, "尾巴没有结束符") {
		t.Errorf("尾部文本丢失: %v", chunks)
	}
}

func TestMergeSentencesEmpty(t *testing.T) {
	if chunks := mergeSentences("   \n\n  ", 100); len(chunks) != 0 {
		t.Errorf("空白文本应产出 0 段, 得到 %v", chunks)
	}
}

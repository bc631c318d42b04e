package textfilter

import (
	"os"
	"path/filepath"
	"testing"
)

func TestApplyOrder(t *testing.T) {
	// 前面规则的输出是后面规则的输入
	f := &Filter{rules: parseRules("a|b\nb|c\n", "test")}
	if got := f.Apply("a"); got != "c" {
		t.Errorf("Apply(\"a\") = %q, 期望 %q", got, "c")
	}
}

func TestApplyMultiplePatterns(t *testing.T) {
	f := &Filter{rules: parseRules("x,y|z\n", "test")}
	if got := f.Apply("xay"); got != "zaz" {
		t.Errorf("Apply(\"xay\") = %q, 期望 %q", got, "zaz")
	}
}

func TestParseSkipsMalformed(t *testing.T) {
	content := "# 注释\n\n没有分隔符的行\n,|r\nok|good\n"
	rules := parseRules(content, "test")
	// 畸形行和无模式行都被跳过，只剩一条有效规则
	if len(rules) != 1 {
		t.Fatalf("规则数 = %d, 期望 1", len(rules))
	}
	if rules[0].Patterns[0] != "ok" || rules[0].Replacement != "good" {
		t.Errorf("解析结果错误: %+v", rules[0])
	}
}

func TestLoadFallback(t *testing.T) {
	// 文件读不到时回退到内置规则，不报错
	f := Load("/不存在的路径/rules.txt")
	if f.Len() == 0 {
		t.Error("回退后应载入内置规则")
	}
}

func TestLoadCustomFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.txt")
	if err := os.WriteFile(path, []byte("foo|bar\n"), 0644); err != nil {
		t.Fatal(err)
	}
	f := Load(path)
	if got := f.Apply("foo baz"); got != "bar baz" {
		t.Errorf("Apply = %q, 期望 %q", got, "bar baz")
	}
}

func TestNilFilterIsNoop(t *testing.T) {
	var f *Filter
	if got := f.Apply("unchanged"); got != "unchanged" {
		t.Errorf("空过滤器应原样返回输入, 得到 %q", got)
	}
}

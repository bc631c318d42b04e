// Package textfilter 在朗读前对章节文本做字面替换，
// 规则文件每行 "模式1,模式2|替换"，# 开头为注释。
// 过滤永远不会让合成失败：规则缺失或损坏时原样返回输入。
package textfilter

import (
	_ "embed"
	"os"
	"strings"

	"github.com/iabetor/bookvoice/internal/logger"
)

//go:embed filter.txt
var defaultRules string

// Rule 一条替换规则：任一模式命中都替换为同一个 Replacement。
type Rule struct {
	Patterns    []string
	Replacement string
}

// Filter 一组按声明顺序应用的替换规则。
type Filter struct {
	rules []Rule
}

// Load 按回退链加载规则：
//  1. path 非空时读该文件；
//  2. 读不到或 path 为空时用内置默认规则。
//
// 任何失败都降级而不是报错，保证过滤环节不会中断合成。
func Load(path string) *Filter {
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return &Filter{rules: parseRules(string(data), path)}
		}
		logger.Warnf("[textfilter] 读取规则文件 %s 失败，回退到内置规则: %v", path, err)
	}
	return &Filter{rules: parseRules(defaultRules, "内置")}
}

// parseRules 逐行解析规则，跳过注释、空行和缺少 '|' 的畸形行。
func parseRules(content, source string) []Rule {
	var rules []Rule
	for i, line := range strings.Split(content, "\n") {
		line = strings.TrimRight(line, "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		idx := strings.Index(line, "|")
		if idx < 0 {
			logger.Warnf("[textfilter] %s 第 %d 行缺少 '|'，已跳过: %s", source, i+1, line)
			continue
		}
		replacement := line[idx+1:]
		var patterns []string
		for _, p := range strings.Split(line[:idx], ",") {
			if p != "" {
				patterns = append(patterns, p)
			}
		}
		if len(patterns) == 0 {
			logger.Warnf("[textfilter] %s 第 %d 行没有模式，已跳过", source, i+1)
			continue
		}
		rules = append(rules, Rule{Patterns: patterns, Replacement: replacement})
	}
	return rules
}

// Apply 按声明顺序应用所有规则，前面规则的输出是后面规则的输入。
// 替换是字面的，不是正则。
func (f *Filter) Apply(text string) string {
	if f == nil || len(f.rules) == 0 {
		return text
	}
	for _, rule := range f.rules {
		for _, p := range rule.Patterns {
			text = strings.ReplaceAll(text, p, rule.Replacement)
		}
	}
	return text
}

// Len 返回已加载的规则条数。
func (f *Filter) Len() int {
	if f == nil {
		return 0
	}
	return len(f.rules)
}

// Package m4b 把章节 WAV 拼成带章节目录和封面的 M4B 有声书。
// 拼接与编码交给外部 ffmpeg/ffprobe 完成。
package m4b

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/iabetor/bookvoice/internal/logger"
)

// Chapter 一段已合成音频及其目录标题。
type Chapter struct {
	Path  string
	Title string
}

// Assembler 驱动一次 M4B 组装。
type Assembler struct {
	// FFmpegPath / FFprobePath 为空时从 PATH 查找。
	FFmpegPath  string
	FFprobePath string
}

func (a *Assembler) ffmpeg() string {
	if a.FFmpegPath != "" {
		return a.FFmpegPath
	}
	return "ffmpeg"
}

func (a *Assembler) ffprobe() string {
	if a.FFprobePath != "" {
		return a.FFprobePath
	}
	return "ffprobe"
}

// Assemble 把章节音频组装成 <输出目录>/<基础名>.m4b。
// title/author 写入元数据，cover 非空时作为封面内嵌。
// 任一步失败都保留章节 WAV，便于修复后重跑。
func (a *Assembler) Assemble(ctx context.Context, chapters []Chapter, title, author, sourcePath, outputDir string, cover []byte) (string, error) {
	if len(chapters) == 0 {
		return "", fmt.Errorf("[m4b] 没有可组装的章节音频")
	}

	base := filepath.Base(sourcePath)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	indexPath := filepath.Join(outputDir, "chapters.txt")
	if err := a.writeIndexFile(ctx, indexPath, title, author, chapters); err != nil {
		return "", err
	}

	concatPath, err := a.concatWAVs(ctx, chapters, outputDir, base)
	if err != nil {
		return "", err
	}
	defer os.Remove(concatPath)

	finalPath := filepath.Join(outputDir, base+".m4b")
	if err := a.encodeM4B(ctx, concatPath, indexPath, finalPath, outputDir, cover); err != nil {
		return "", err
	}

	logger.Infof("[m4b] 已生成 %s，中间 WAV 文件可自行删除", finalPath)
	return finalPath, nil
}

// probeDuration 用 ffprobe 读音频时长（秒）。
func (a *Assembler) probeDuration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, a.ffprobe(),
		"-i", path,
		"-show_entries", "format=duration",
		"-v", "quiet",
		"-of", "default=noprint_wrappers=1:nokey=1",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("[m4b] ffprobe 探测 %s 失败: %w, stderr: %s", filepath.Base(path), err, stderr.String())
	}

	dur, err := strconv.ParseFloat(strings.TrimSpace(stdout.String()), 64)
	if err != nil {
		return 0, fmt.Errorf("[m4b] 解析 %s 时长失败: %w", filepath.Base(path), err)
	}
	return dur, nil
}

// writeIndexFile 生成 FFMETADATA1 章节目录，时长来自 ffprobe 实测。
func (a *Assembler) writeIndexFile(ctx context.Context, path, title, author string, chapters []Chapter) error {
	titles := make([]string, len(chapters))
	durationsMs := make([]int64, len(chapters))
	for i, ch := range chapters {
		dur, err := a.probeDuration(ctx, ch.Path)
		if err != nil {
			return err
		}
		titles[i] = ch.Title
		durationsMs[i] = int64(dur * 1000)
	}

	if err := os.WriteFile(path, formatIndex(title, author, titles, durationsMs), 0644); err != nil {
		return fmt.Errorf("[m4b] 写章节目录失败: %w", err)
	}
	return nil
}

// formatIndex 生成 FFMETADATA1 文本，时间基 1/1000（毫秒）。
// 每章起点是前章终点，按毫秒累加。
func formatIndex(title, author string, titles []string, durationsMs []int64) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, ";FFMETADATA1\ntitle=%s\nartist=%s\n\n", title, author)

	startMs := int64(0)
	for i, t := range titles {
		endMs := startMs + durationsMs[i]
		fmt.Fprintf(&buf, "[CHAPTER]\nTIMEBASE=1/1000\nSTART=%d\nEND=%d\ntitle=%s\n\n", startMs, endMs, t)
		startMs = endMs
	}
	return buf.Bytes()
}

// concatWAVs 用 ffmpeg concat demuxer 无损拼接所有章节，输出临时 .tmp.mp4。
func (a *Assembler) concatWAVs(ctx context.Context, chapters []Chapter, outputDir, base string) (string, error) {
	listPath := filepath.Join(outputDir, base+"_wav_list.txt")
	var list bytes.Buffer
	for _, ch := range chapters {
		// concat demuxer 的路径语法：单引号包裹，内部单引号转义
		escaped := strings.ReplaceAll(ch.Path, "'", `'\''`)
		fmt.Fprintf(&list, "file '%s'\n", escaped)
	}
	if err := os.WriteFile(listPath, list.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("[m4b] 写拼接清单失败: %w", err)
	}
	defer os.Remove(listPath)

	concatPath := filepath.Join(outputDir, base+".tmp.mp4")
	cmd := exec.CommandContext(ctx, a.ffmpeg(),
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		concatPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("[m4b] ffmpeg 拼接失败: %w, stderr: %s", err, tail(stderr.String()))
	}

	logger.Infof("[m4b] 已拼接 %d 个章节音频", len(chapters))
	return concatPath, nil
}

// encodeM4B 把拼接产物编码为 AAC 64k 的 M4B，并写入章节目录与封面。
func (a *Assembler) encodeM4B(ctx context.Context, concatPath, indexPath, finalPath, outputDir string, cover []byte) error {
	args := []string{
		"-y",
		"-i", concatPath,
		"-i", indexPath,
	}

	if len(cover) > 0 {
		coverPath := filepath.Join(outputDir, "cover")
		if err := os.WriteFile(coverPath, cover, 0644); err != nil {
			return fmt.Errorf("[m4b] 写封面文件失败: %w", err)
		}
		defer os.Remove(coverPath)
		args = append(args,
			"-i", coverPath,
			"-map", "2:v",
			"-disposition:v", "attached_pic",
			"-c:v", "copy",
		)
	}

	args = append(args,
		"-map", "0:a",
		"-c:a", "aac",
		"-b:a", "64k",
		"-map_metadata", "1",
		"-f", "mp4",
		finalPath,
	)

	cmd := exec.CommandContext(ctx, a.ffmpeg(), args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("[m4b] ffmpeg 编码失败: %w, stderr: %s", err, tail(stderr.String()))
	}
	return nil
}

// tail 截取 stderr 尾部，ffmpeg 的报错在最后几行。
func tail(s string) string {
	s = strings.TrimSpace(s)
	lines := strings.Split(s, "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return strings.Join(lines, "\n")
}

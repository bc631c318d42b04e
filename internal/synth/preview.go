package synth

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/iabetor/bookvoice/internal/audio"
	"github.com/iabetor/bookvoice/internal/logger"
	"github.com/iabetor/bookvoice/internal/textfilter"
	"github.com/iabetor/bookvoice/internal/tts"
)

// previewChars 试听截取的最大字符数。
const previewChars = 200

// Preview 合成文本开头的一小段并通过扬声器播放，用于确认语音配置。
// 样段会先落到临时 WAV 文件再播放，播放后删除。
func Preview(ctx context.Context, engine tts.Engine, filter *textfilter.Filter, text string) error {
	sample := previewText(text)
	if sample == "" {
		return fmt.Errorf("没有可试听的文本")
	}
	sample = filter.Apply(sample)

	samples, sampleRate, err := engine.Synthesize(ctx, sample)
	if err != nil {
		return fmt.Errorf("试听合成失败: %w", err)
	}
	if len(samples) == 0 {
		return ErrNoAudio
	}

	// 临时落盘，方便排查时能拿到样段文件
	tmpPath := filepath.Join(os.TempDir(), fmt.Sprintf("bookvoice-preview-%s.wav", uuid.NewString()))
	if err := audio.WriteWAV(tmpPath, samples, sampleRate); err != nil {
		return err
	}
	defer os.Remove(tmpPath)
	logger.Debugf("[synth] 试听样段: %s", tmpPath)

	player, err := audio.NewPlayer(1)
	if err != nil {
		return fmt.Errorf("创建播放器失败: %w", err)
	}
	defer player.Close()

	return player.Play(ctx, samples, sampleRate)
}

// previewText 截取文本开头的试听片段，压平换行。
func previewText(text string) string {
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, "\n", " ")
	text = strings.ReplaceAll(text, "\r", " ")
	if utf8.RuneCountInString(text) <= previewChars {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:previewChars]))
}

package tts

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/iabetor/bookvoice/internal/audio"
	"github.com/iabetor/bookvoice/internal/logger"
)

// piperSampleRate 是 piper 输出的固定采样率。
const piperSampleRate = 22050

// PiperEngine 使用 piper CLI 子进程实现语音合成，作为离线备用方案。
type PiperEngine struct {
	modelPath string
	speed     float64
}

// NewPiperEngine 创建指定模型和语速的 Piper TTS 引擎。
func NewPiperEngine(modelPath string, speed float64) *PiperEngine {
	if speed <= 0 {
		speed = 1.0
	}
	return &PiperEngine{modelPath: modelPath, speed: speed}
}

// Synthesize 使用 piper CLI 将文本转换为单声道 float32 音频样本。
// piper 输出 signed 16-bit LE 单声道 PCM，采样率 22050 Hz。
// piper 的 length-scale 是语速的倒数：值越小读得越快。
func (p *PiperEngine) Synthesize(ctx context.Context, text string) ([]float32, int, error) {
	logger.Debugf("[tts] piper: 正在合成 %d 个字符，模型=%s 语速=%.2f", len([]rune(text)), p.modelPath, p.speed)

	lengthScale := strconv.FormatFloat(1.0/p.speed, 'f', 2, 64)
	cmd := exec.CommandContext(ctx, "piper",
		"--model", p.modelPath,
		"--length-scale", lengthScale,
		"--output-raw",
	)
	cmd.Stdin = bytes.NewReader([]byte(text))

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		stderrStr := stderr.String()
		if stderrStr != "" {
			logger.Warnf("[tts] piper stderr: %s", stderrStr)
		}
		return nil, 0, fmt.Errorf("[tts] piper 执行失败: %w", err)
	}

	pcmData := stdout.Bytes()

	if len(pcmData) == 0 {
		return nil, 0, fmt.Errorf("[tts] piper: 未收到音频数据")
	}

	// 将 signed 16-bit LE 单声道 PCM 字节转换为 float32 样本
	samples := audio.BytesToFloat32(pcmData)

	logger.Debugf("[tts] piper: 生成 %d 个单声道 float32 样本", len(samples))

	return samples, piperSampleRate, nil
}

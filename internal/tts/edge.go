package tts

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/hajimehoshi/go-mp3"
	"github.com/pp-group/edge-tts-go/biz/service/tts/edge"

	"github.com/iabetor/bookvoice/internal/logger"
)

// EdgeEngine 使用微软 Edge TTS 实现语音合成，
// 通过 edge-tts-go 获取 MP3 音频，再用 go-mp3 解码为 PCM。
type EdgeEngine struct {
	voice string
	speed float64
}

// NewEdgeEngine 创建指定语音和语速的 Edge TTS 引擎。
// speed 以 1.0 为正常语速。
func NewEdgeEngine(voice string, speed float64) *EdgeEngine {
	if speed <= 0 {
		speed = 1.0
	}
	return &EdgeEngine{voice: voice, speed: speed}
}

// rateString 把语速倍率换算成 Edge TTS 的百分比形式，如 "+20%"、"-10%"。
func (e *EdgeEngine) rateString() string {
	pct := int(math.Round((e.speed - 1.0) * 100))
	return fmt.Sprintf("%+d%%", pct)
}

// Synthesize 将文本合成为单声道 float32 音频样本。
// 返回样本数据、采样率和错误。
func (e *EdgeEngine) Synthesize(ctx context.Context, text string) ([]float32, int, error) {
	logger.Debugf("[tts] edge-tts: 正在合成 %d 个字符，语音=%s 语速=%s", len([]rune(text)), e.voice, e.rateString())

	// 创建 Communicate 实例并通过 Stream() 获取 MP3 音频块
	comm, err := edge.NewCommunicate(text, edge.WithVoice(e.voice), edge.WithRate(e.rateString()))
	if err != nil {
		return nil, 0, fmt.Errorf("[tts] edge-tts 创建实例失败: %w", err)
	}

	ch, err := comm.Stream()
	if err != nil {
		return nil, 0, fmt.Errorf("[tts] edge-tts 开始流式合成失败: %w", err)
	}

	// 从 channel 收集所有音频数据
	var mp3Buf bytes.Buffer
	for msg := range ch {
		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		default:
		}
		// Stream() 返回的 map 中，type=="audio" 的条目包含音频数据
		if msgType, ok := msg["type"].(string); ok && msgType == "audio" {
			if data, ok := msg["data"].([]byte); ok {
				mp3Buf.Write(data)
			}
		}
	}

	mp3Data := mp3Buf.Bytes()
	if len(mp3Data) == 0 {
		return nil, 0, fmt.Errorf("[tts] edge-tts: 未收到音频数据")
	}

	logger.Debugf("[tts] edge-tts: 收到 %d 字节 MP3 数据", len(mp3Data))

	// 解码 MP3 为原始 PCM
	decoder, err := mp3.NewDecoder(bytes.NewReader(mp3Data))
	if err != nil {
		return nil, 0, fmt.Errorf("[tts] MP3 解码失败: %w", err)
	}

	sampleRate := decoder.SampleRate()

	pcmData, err := io.ReadAll(decoder)
	if err != nil {
		return nil, 0, fmt.Errorf("[tts] 读取 PCM 数据失败: %w", err)
	}

	samples := stereoToMono(pcmData)

	logger.Debugf("[tts] edge-tts: 生成 %d 个单声道 float32 样本，采样率 %d Hz", len(samples), sampleRate)

	return samples, sampleRate, nil
}

// stereoToMono 将立体声 signed 16-bit LE PCM 转换为单声道 float32。
// 每个立体声帧 4 字节：左声道 2 字节 + 右声道 2 字节。
func stereoToMono(pcmData []byte) []float32 {
	const bytesPerFrame = 4
	if len(pcmData)%bytesPerFrame != 0 {
		// 截掉不完整的尾部帧
		pcmData = pcmData[:len(pcmData)/bytesPerFrame*bytesPerFrame]
	}

	numFrames := len(pcmData) / bytesPerFrame
	samples := make([]float32, numFrames)

	for i := 0; i < numFrames; i++ {
		offset := i * bytesPerFrame
		left := int16(binary.LittleEndian.Uint16(pcmData[offset : offset+2]))
		right := int16(binary.LittleEndian.Uint16(pcmData[offset+2 : offset+4]))

		// 左右声道取平均得到单声道，归一化到 [-1.0, 1.0]
		mono := (float32(left) + float32(right)) / 2.0
		samples[i] = mono / 32768.0
	}

	return samples
}

package audio

import (
	"fmt"
	"os"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteWAV 把单声道 float32 样本写成 16-bit PCM WAV 文件。
// 先写临时文件再原子改名，避免中途失败留下半截文件
// （断点续跑按文件是否存在判断章节是否已完成）。
func WriteWAV(path string, samples []float32, sampleRate int) error {
	if len(samples) == 0 {
		return fmt.Errorf("没有可写入的音频样本")
	}

	tmpPath := path + ".part"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("创建 WAV 文件失败: %w", err)
	}

	ints := make([]int, len(samples))
	for i, s := range Float32ToInt16(samples) {
		ints[i] = int(s)
	}
	buffer := &gaudio.IntBuffer{
		Format: &gaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:   ints,
	}

	enc := wav.NewEncoder(file, sampleRate, 16, 1, 1)
	if err := enc.Write(buffer); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("写入 WAV 数据失败: %w", err)
	}
	if err := enc.Close(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("关闭 WAV 编码器失败: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("关闭 WAV 文件失败: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("落盘 WAV 文件失败: %w", err)
	}
	return nil
}

// ReadWAV 读取 16-bit PCM WAV 文件为 float32 样本，返回样本与采样率。
func ReadWAV(path string) ([]float32, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("打开 WAV 文件失败: %w", err)
	}
	defer file.Close()

	dec := wav.NewDecoder(file)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("解码 WAV 文件失败: %w", err)
	}

	samples := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float32(int16(v)) / 32768.0
	}
	return samples, buf.Format.SampleRate, nil
}

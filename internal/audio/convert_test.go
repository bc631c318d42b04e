package audio

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFloat32Int16RoundTrip(t *testing.T) {
	in := []float32{0, 0.5, -0.5, 1.0, -1.0}
	out := Int16ToFloat32(Float32ToInt16(in))
	for i := range in {
		diff := in[i] - out[i]
		if diff < 0 {
			diff = -diff
		}
		if diff > 0.001 {
			t.Errorf("样本 %d: %v -> %v, 误差过大", i, in[i], out[i])
		}
	}
}

func TestFloat32ToInt16Clamp(t *testing.T) {
	out := Float32ToInt16([]float32{2.0, -2.0})
	if out[0] != 32767 {
		t.Errorf("超界正样本 = %d, 期望钳位到 32767", out[0])
	}
	if out[1] != -32767 {
		t.Errorf("超界负样本 = %d, 期望钳位到 -32767", out[1])
	}
}

func TestBytesInt16RoundTrip(t *testing.T) {
	in := []int16{0, 1, -1, 12345, -12345, 32767, -32768}
	out := BytesToInt16(Int16ToBytes(in))
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("样本 %d: %d -> %d", i, in[i], out[i])
		}
	}
}

func TestWriteReadWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	in := []float32{0, 0.25, -0.25, 0.5, -0.5}

	if err := WriteWAV(path, in, 22050); err != nil {
		t.Fatalf("写 WAV 失败: %v", err)
	}

	// 临时文件应已被改名掉
	if _, err := os.Stat(path + ".part"); !os.IsNotExist(err) {
		t.Error("写入完成后不应残留 .part 文件")
	}

	out, rate, err := ReadWAV(path)
	if err != nil {
		t.Fatalf("读 WAV 失败: %v", err)
	}
	if rate != 22050 {
		t.Errorf("采样率 = %d, 期望 22050", rate)
	}
	if len(out) != len(in) {
		t.Fatalf("样本数 = %d, 期望 %d", len(out), len(in))
	}
	for i := range in {
		diff := in[i] - out[i]
		if diff < 0 {
			diff = -diff
		}
		if diff > 0.001 {
			t.Errorf("样本 %d: %v -> %v, 误差过大", i, in[i], out[i])
		}
	}
}

func TestWriteWAVEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.wav")
	if err := WriteWAV(path, nil, 22050); err == nil {
		t.Error("空样本写 WAV 应报错")
	}
}

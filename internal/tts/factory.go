package tts

import "fmt"

// Options 汇总构建引擎需要的全部参数。
// 队列条目的设置快照和全局配置都能映射到这一结构。
type Options struct {
	Engine         string // edge, piper, say, tencent
	Voice          string
	Speed          float64
	PiperModelPath string
	Tencent        TencentConfig
}

// NewEngine 按名字构建语音合成引擎。
func NewEngine(opts Options) (Engine, error) {
	if opts.Speed <= 0 {
		opts.Speed = 1.0
	}
	switch opts.Engine {
	case "edge", "":
		return NewEdgeEngine(opts.Voice, opts.Speed), nil
	case "piper":
		if opts.PiperModelPath == "" {
			return nil, fmt.Errorf("[tts] piper 引擎需要模型路径")
		}
		return NewPiperEngine(opts.PiperModelPath, opts.Speed), nil
	case "say":
		return NewSayEngine(opts.Voice, opts.Speed), nil
	case "tencent":
		cfg := opts.Tencent
		cfg.Speed = opts.Speed
		return NewTencentEngine(cfg)
	default:
		return nil, fmt.Errorf("[tts] 未知引擎: %s", opts.Engine)
	}
}

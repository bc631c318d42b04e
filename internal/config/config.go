package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config 是 bookvoice 的顶层配置结构。
type Config struct {
	Store StoreConfig `yaml:"store"`
	TTS   TTSConfig   `yaml:"tts"`
	Synth SynthConfig `yaml:"synth"`
	Queue QueueConfig `yaml:"queue"`
	Log   LogConfig   `yaml:"log"`
}

// StoreConfig 持久化存储配置。
type StoreConfig struct {
	// DataDir 数据目录，数据库和临时文件都放在这里。
	DataDir string `yaml:"data_dir"`
	// DBPath 数据库文件路径，为空则使用 DataDir/bookvoice.db。
	DBPath string `yaml:"db_path"`
}

// TTSConfig 语音合成配置。
type TTSConfig struct {
	Engine  string        `yaml:"engine"` // edge, piper, say, tencent
	Voice   string        `yaml:"voice"`
	Speed   float64       `yaml:"speed"`
	Piper   PiperConfig   `yaml:"piper"`
	Tencent TencentConfig `yaml:"tencent"`
}

// PiperConfig Piper TTS 配置。
type PiperConfig struct {
	ModelPath string `yaml:"model_path"`
}

// TencentConfig 腾讯云 TTS 配置。
type TencentConfig struct {
	SecretID  string `yaml:"secret_id"`
	SecretKey string `yaml:"secret_key"`
	VoiceType int64  `yaml:"voice_type"`
	Region    string `yaml:"region"`
}

// SynthConfig 合成与组装配置。
type SynthConfig struct {
	// OutputFolder 章节音频和成品的默认输出目录。
	OutputFolder string `yaml:"output_folder"`
	// FilterFile 文本替换规则文件路径，为空则使用内置规则。
	FilterFile string `yaml:"filter_file"`
	// Accelerated 是否按加速硬件的默认吞吐估算 ETA。
	Accelerated bool `yaml:"accelerated"`
}

// QueueConfig 队列处理配置。
type QueueConfig struct {
	// ScheduleCheckSecs 定时触发器的检查间隔（秒）。
	ScheduleCheckSecs int `yaml:"schedule_check_secs"`
}

// LogConfig 日志配置。
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Load 读取 YAML 配置文件并返回 Config。
// 支持 ${VAR_NAME} 形式的环境变量展开。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
	}

	// 展开环境变量，如 ${BOOKVOICE_TENCENT_SECRET_KEY}
	expanded := os.Expand(string(data), func(key string) string {
		return os.Getenv(key)
	})

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
	}

	setDefaults(cfg)
	return cfg, nil
}

// Default 返回全默认值的配置，用于没有配置文件的场景。
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// setDefaults 为未设置的配置项填充默认值。
func setDefaults(cfg *Config) {
	if cfg.TTS.Engine == "" {
		cfg.TTS.Engine = "edge"
	}
	if cfg.TTS.Voice == "" {
		cfg.TTS.Voice = "en-US-AriaNeural"
	}
	if cfg.TTS.Speed == 0 {
		cfg.TTS.Speed = 1.0
	}
	if cfg.TTS.Tencent.Region == "" {
		cfg.TTS.Tencent.Region = "ap-guangzhou"
	}
	if cfg.Synth.OutputFolder == "" {
		cfg.Synth.OutputFolder = "."
	}
	if cfg.Queue.ScheduleCheckSecs == 0 {
		cfg.Queue.ScheduleCheckSecs = 30
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	if cfg.Store.DataDir == "" {
		home, _ := os.UserHomeDir()
		if home != "" {
			cfg.Store.DataDir = filepath.Join(home, ".bookvoice")
		} else {
			cfg.Store.DataDir = "./.bookvoice-data"
		}
	} else if strings.HasPrefix(cfg.Store.DataDir, "~/") {
		// Go 不会自动展开 ~，需要手动替换为用户主目录
		home, _ := os.UserHomeDir()
		if home != "" {
			cfg.Store.DataDir = home + cfg.Store.DataDir[1:]
		}
	}
	if cfg.Store.DBPath == "" {
		cfg.Store.DBPath = filepath.Join(cfg.Store.DataDir, "bookvoice.db")
	}

	// 环境变量展开后常见两端空白
	cfg.TTS.Tencent.SecretID = strings.TrimSpace(cfg.TTS.Tencent.SecretID)
	cfg.TTS.Tencent.SecretKey = strings.TrimSpace(cfg.TTS.Tencent.SecretKey)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadWithEnvExpansion(t *testing.T) {
	t.Setenv("BOOKVOICE_TEST_SECRET", "秘密值")

	content := `
tts:
  engine: tencent
  voice: "101001"
  speed: 1.2
  tencent:
    secret_id: test-id
    secret_key: ${BOOKVOICE_TEST_SECRET}
synth:
  output_folder: /tmp/out
queue:
  schedule_check_secs: 5
log:
  level: debug
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if cfg.TTS.Engine != "tencent" {
		t.Errorf("引擎 = %q", cfg.TTS.Engine)
	}
	if cfg.TTS.Speed != 1.2 {
		t.Errorf("语速 = %v", cfg.TTS.Speed)
	}
	if cfg.TTS.Tencent.SecretKey != "秘密值" {
		t.Errorf("环境变量未展开: %q", cfg.TTS.Tencent.SecretKey)
	}
	if cfg.Synth.OutputFolder != "/tmp/out" {
		t.Errorf("输出目录 = %q", cfg.Synth.OutputFolder)
	}
	if cfg.Queue.ScheduleCheckSecs != 5 {
		t.Errorf("检查间隔 = %d", cfg.Queue.ScheduleCheckSecs)
	}
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.TTS.Engine != "edge" {
		t.Errorf("默认引擎 = %q, 期望 edge", cfg.TTS.Engine)
	}
	if cfg.TTS.Voice == "" {
		t.Error("默认语音不应为空")
	}
	if cfg.TTS.Speed != 1.0 {
		t.Errorf("默认语速 = %v, 期望 1.0", cfg.TTS.Speed)
	}
	if cfg.Queue.ScheduleCheckSecs != 30 {
		t.Errorf("默认检查间隔 = %d, 期望 30", cfg.Queue.ScheduleCheckSecs)
	}
	if cfg.Store.DataDir == "" || cfg.Store.DBPath == "" {
		t.Error("默认数据目录不应为空")
	}
	if filepath.Dir(cfg.Store.DBPath) != cfg.Store.DataDir {
		t.Errorf("数据库默认应落在数据目录下: %q / %q", cfg.Store.DBPath, cfg.Store.DataDir)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/不存在/config.yaml"); err == nil {
		t.Error("配置文件缺失应报错")
	}
}

func TestTildeExpansion(t *testing.T) {
	content := "store:\n  data_dir: ~/bookvoice-data\n"
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	home, _ := os.UserHomeDir()
	if home != "" && cfg.Store.DataDir != filepath.Join(home, "bookvoice-data") {
		t.Errorf("~ 未展开: %q", cfg.Store.DataDir)
	}
}

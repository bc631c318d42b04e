package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/iabetor/bookvoice/internal/book"
	"github.com/iabetor/bookvoice/internal/config"
	"github.com/iabetor/bookvoice/internal/database"
	"github.com/iabetor/bookvoice/internal/logger"
	"github.com/iabetor/bookvoice/internal/m4b"
	"github.com/iabetor/bookvoice/internal/progress"
	"github.com/iabetor/bookvoice/internal/queue"
	"github.com/iabetor/bookvoice/internal/store"
	"github.com/iabetor/bookvoice/internal/synth"
	"github.com/iabetor/bookvoice/internal/textfilter"
	"github.com/iabetor/bookvoice/internal/tts"
)

func main() {
	configPath := flag.String("config", "configs/bookvoice.yaml", "配置文件路径")
	voice := flag.String("voice", "", "覆盖配置中的语音")
	speed := flag.Float64("speed", 0, "覆盖配置中的语速（1.0 为正常）")
	engine := flag.String("engine", "", "覆盖配置中的引擎 (edge/piper/say/tencent)")
	output := flag.String("output", "", "覆盖配置中的输出目录")
	rate := flag.String("rate", "", "ETA 估算用的速率（字符/秒），默认按硬件假设")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	cfg := loadConfig(*configPath)
	applyOverrides(cfg, *voice, *speed, *engine, *output)

	if err := logger.Init(logger.Config{Level: cfg.Log.Level, File: cfg.Log.File}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 监听系统信号，优雅关闭
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Infof("[main] 收到信号 %v，正在关闭...", sig)
		cancel()
	}()

	switch args[0] {
	case "synth":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "用法: bookvoice synth <文档路径>")
			os.Exit(1)
		}
		cmdSynth(ctx, cfg, args[1], *rate)
	case "run":
		cmdRun(ctx, cfg)
	case "daemon":
		cmdDaemon(ctx, cfg)
	case "preview":
		text := "你好，这是语音试听。The quick brown fox jumps over the lazy dog."
		if len(args) > 1 {
			text = strings.Join(args[1:], " ")
		}
		cmdPreview(ctx, cfg, text)
	default:
		fmt.Fprintf(os.Stderr, "未知命令: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "BookVoice 电子书转有声书工具")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "用法: bookvoice [flags] <command> [args]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "命令:")
	fmt.Fprintln(os.Stderr, "  synth <文档>   合成单本书并生成 M4B")
	fmt.Fprintln(os.Stderr, "  run            立即处理一轮合成队列")
	fmt.Fprintln(os.Stderr, "  daemon         常驻运行，按定时设置处理队列")
	fmt.Fprintln(os.Stderr, "  preview [文本]  试听当前语音配置")
}

// loadConfig 读配置文件；文件不存在时退回全默认配置。
func loadConfig(path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return config.Default()
		}
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func applyOverrides(cfg *config.Config, voice string, speed float64, engine, output string) {
	if voice != "" {
		cfg.TTS.Voice = voice
	}
	if speed > 0 {
		cfg.TTS.Speed = speed
	}
	if engine != "" {
		cfg.TTS.Engine = engine
	}
	if output != "" {
		cfg.Synth.OutputFolder = output
	}
}

func newEngine(cfg *config.Config) tts.Engine {
	engine, err := tts.NewEngine(tts.Options{
		Engine:         cfg.TTS.Engine,
		Voice:          cfg.TTS.Voice,
		Speed:          cfg.TTS.Speed,
		PiperModelPath: cfg.TTS.Piper.ModelPath,
		Tencent: tts.TencentConfig{
			SecretID:  cfg.TTS.Tencent.SecretID,
			SecretKey: cfg.TTS.Tencent.SecretKey,
			VoiceType: cfg.TTS.Tencent.VoiceType,
			Region:    cfg.TTS.Tencent.Region,
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "创建引擎失败: %v\n", err)
		os.Exit(1)
	}
	return engine
}

// consoleObserver 把合成事件打到控制台。
func consoleObserver() synth.Observer {
	return synth.ObserverFunc(func(e synth.Event) {
		switch e.Kind {
		case synth.EventStarted:
			fmt.Printf("开始合成《%s》，共 %d 字符\n", e.BookTitle, e.Total)
		case synth.EventChapterStarted:
			fmt.Printf("  第 %d 章: %s\n", e.ChapterIndex, e.ChapterTitle)
		case synth.EventChapterFinished:
			switch {
			case e.Err != nil:
				fmt.Printf("  第 %d 章失败: %v\n", e.ChapterIndex, e.Err)
			case e.Skipped:
				fmt.Printf("  第 %d 章跳过\n", e.ChapterIndex)
			default:
				fmt.Printf("  第 %d 章完成 (%d%%，剩余约 %s)\n",
					e.ChapterIndex, e.Percent, progress.FormatDuration(e.ETA))
			}
		case synth.EventFinished:
			if e.Err != nil {
				fmt.Printf("《%s》合成中断: %v\n", e.BookTitle, e.Err)
			} else {
				fmt.Printf("《%s》合成结束\n", e.BookTitle)
			}
		}
	})
}

// cmdSynth 单本直通：解析、选章、合成、组装。
func cmdSynth(ctx context.Context, cfg *config.Config, path, rate string) {
	doc, err := book.ParseFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	n := book.SelectGoodChapters(doc.Chapters, nil)
	fmt.Printf("已解析《%s》: %d 章，选中 %d 章\n", doc.Title, len(doc.Chapters), n)

	filter := textfilter.Load(cfg.Synth.FilterFile)
	synthesizer := synth.New(newEngine(cfg), filter, consoleObserver())

	params := synth.Params{
		BookTitle:   doc.Title,
		Author:      doc.Author,
		SourcePath:  path,
		OutputDir:   cfg.Synth.OutputFolder,
		Voice:       cfg.TTS.Voice,
		Accelerated: cfg.Synth.Accelerated,
		CustomRate:  rate,
	}

	results, err := synthesizer.Run(ctx, params, doc.Chapters)
	if err != nil {
		fmt.Fprintf(os.Stderr, "合成中断: %v\n", err)
		os.Exit(1)
	}

	var produced []m4b.Chapter
	for _, r := range results {
		if r.Err == nil && r.Path != "" {
			produced = append(produced, m4b.Chapter{Path: r.Path, Title: r.Title})
		}
	}
	if len(produced) == 0 {
		fmt.Fprintln(os.Stderr, "没有任何章节产出音频")
		os.Exit(1)
	}

	assembler := &m4b.Assembler{}
	finalPath, err := assembler.Assemble(ctx, produced, doc.Title, doc.Author, path, cfg.Synth.OutputFolder, doc.Cover)
	if err != nil {
		fmt.Fprintf(os.Stderr, "组装失败（章节 WAV 已保留）: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("完成: %s\n", finalPath)
}

func openProcessor(cfg *config.Config) (*queue.Processor, *database.DB) {
	db, err := database.Open(cfg.Store.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "打开数据库失败: %v\n", err)
		os.Exit(1)
	}
	if err := db.Migrate(); err != nil {
		fmt.Fprintf(os.Stderr, "数据库迁移失败: %v\n", err)
		os.Exit(1)
	}

	st := store.New(db)
	filter := textfilter.Load(cfg.Synth.FilterFile)
	return queue.New(st, cfg, filter, consoleObserver()), db
}

// cmdRun 立即处理一轮队列。
func cmdRun(ctx context.Context, cfg *config.Config) {
	p, db := openProcessor(cfg)
	defer db.Close()

	if err := p.Run(ctx); err != nil && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "队列处理失败: %v\n", err)
		os.Exit(1)
	}
}

// cmdDaemon 常驻运行定时检查器，直到收到退出信号。
func cmdDaemon(ctx context.Context, cfg *config.Config) {
	p, db := openProcessor(cfg)
	defer db.Close()

	logger.Info("[main] BookVoice 守护进程已启动")
	p.StartScheduleChecker(ctx)
	logger.Info("[main] BookVoice 已停止")
}

// cmdPreview 试听当前语音配置。
func cmdPreview(ctx context.Context, cfg *config.Config, text string) {
	filter := textfilter.Load(cfg.Synth.FilterFile)
	if err := synth.Preview(ctx, newEngine(cfg), filter, text); err != nil {
		fmt.Fprintf(os.Stderr, "试听失败: %v\n", err)
		os.Exit(1)
	}
}

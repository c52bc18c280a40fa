package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/iWorld-y/equity_radar/pkg/config"
	"github.com/iWorld-y/equity_radar/pkg/engine"
	"github.com/iWorld-y/equity_radar/pkg/logger"
	"github.com/iWorld-y/equity_radar/pkg/report"
	"github.com/iWorld-y/equity_radar/pkg/storage"
)

var (
	flagconf string
	flagout  string
)

func init() {
	flag.StringVar(&flagconf, "conf", "configs/config.yaml", "config path, eg: -conf configs/config.yaml")
	flag.StringVar(&flagout, "o", "", "write the full markdown report to this file")
}

func main() {
	flag.Parse()

	// 1. 加载配置
	cfg, err := config.LoadConfig(flagconf)
	if err != nil {
		log.Fatalf("无法加载配置文件: %v", err)
	}

	// 2. 初始化日志
	if err = logger.Init(cfg.Log.Level, cfg.Log.File); err != nil {
		log.Fatalf("无法初始化日志: %v", err)
	}

	// 查询取自命令行参数，缺省用示例代码 NVDA
	query := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if query == "" {
		query = "NVDA"
	}

	// 3. 初始化数据库连接（可选）
	var store *storage.Storage
	if cfg.DB.Host != "" {
		s, err := storage.New(cfg.DB)
		if err != nil {
			logger.Log.Errorf("无法连接数据库: %v. 本次运行不做持久化。", err)
		} else {
			store = s
			defer store.Close()
			logger.Log.Info("已成功连接到数据库")
		}
	}

	// 4. 初始化引擎
	eng, err := engine.New(cfg, store)
	if err != nil {
		logger.Log.Fatalf("引擎初始化失败: %v", err)
	}

	fmt.Fprintf(os.Stderr, "Running research for: %q\n\n", query)

	// 进度通知走 stderr，与报告正文分离
	opts := engine.RunOptions{
		Progress: func(msg string) {
			fmt.Fprintf(os.Stderr, "  [agent] %s\n", msg)
		},
	}

	result, err := eng.Research(context.Background(), query, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
		os.Exit(1)
	}

	// 5. 输出：摘要与要点到 stdout，完整报告可写入文件
	fmt.Println("\n--- REPORT ---")
	fmt.Println(result.ExecutiveSummary)
	fmt.Println("\nKey takeaways:")
	fmt.Println(result.KeyTakeaways)

	if flagout != "" {
		md := report.ToMarkdown(result)
		if err := os.WriteFile(flagout, []byte(md), 0o644); err != nil {
			logger.Log.Errorf("写入报告文件失败: %v", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "\nFull report written to %s\n", flagout)
	}
}

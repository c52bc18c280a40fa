package main

import (
	"flag"
	"os"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"

	"github.com/iWorld-y/equity_radar/internal/server"
	"github.com/iWorld-y/equity_radar/pkg/config"
	"github.com/iWorld-y/equity_radar/pkg/engine"
	"github.com/iWorld-y/equity_radar/pkg/logger"
	"github.com/iWorld-y/equity_radar/pkg/storage"
)

// go build -ldflags "-X main.Version=x.y.z"
var (
	// Name 是服务的名称
	Name string = "equity-radar"
	// Version 是服务的版本号
	Version string
	// flagconf 是配置文件的路径命令行参数
	flagconf string
	// flagaddr 是 HTTP 监听地址
	flagaddr string

	id, _ = os.Hostname()
)

func init() {
	flag.StringVar(&flagconf, "conf", "configs/config.yaml", "config path, eg: -conf configs/config.yaml")
	flag.StringVar(&flagaddr, "addr", ":8000", "http listen address, eg: -addr :8000")
}

func main() {
	flag.Parse()
	// 服务生命周期日志：带时间戳、调用者与服务元信息
	klogger := log.With(log.NewStdLogger(os.Stdout),
		"ts", log.DefaultTimestamp,
		"caller", log.DefaultCaller,
		"service.id", id,
		"service.name", Name,
		"service.version", Version,
	)
	helper := log.NewHelper(klogger)

	cfg, err := config.LoadConfig(flagconf)
	if err != nil {
		helper.Fatalf("无法加载配置文件: %v", err)
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.File); err != nil {
		helper.Fatalf("无法初始化日志: %v", err)
	}

	// 存储层可选：没配数据库时研究接口照常工作，历史查询接口不可用
	var store *storage.Storage
	if cfg.DB.Host != "" {
		s, err := storage.New(cfg.DB)
		if err != nil {
			helper.Errorf("无法连接数据库: %v. 历史报告接口将不可用。", err)
		} else {
			store = s
			defer store.Close()
		}
	}

	eng, err := engine.New(cfg, store)
	if err != nil {
		helper.Fatalf("引擎初始化失败: %v", err)
	}

	hs := server.NewHTTPServer(flagaddr, "300s", eng, store, klogger)

	app := kratos.New(
		kratos.ID(id),
		kratos.Name(Name),
		kratos.Version(Version),
		kratos.Metadata(map[string]string{}),
		kratos.Logger(klogger),
		kratos.Server(hs),
	)

	if err := app.Run(); err != nil {
		panic(err)
	}
}

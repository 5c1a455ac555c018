package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/dneimke/simple-coding-sub000/internal/api"
	"github.com/dneimke/simple-coding-sub000/internal/archive"
	"github.com/dneimke/simple-coding-sub000/internal/config"
	"github.com/dneimke/simple-coding-sub000/internal/database"
	"github.com/dneimke/simple-coding-sub000/internal/errors"
	"github.com/dneimke/simple-coding-sub000/internal/game"
	"github.com/dneimke/simple-coding-sub000/internal/layout"
	"github.com/dneimke/simple-coding-sub000/internal/logger"
	"github.com/dneimke/simple-coding-sub000/internal/monitor"
	"github.com/dneimke/simple-coding-sub000/internal/repository"
	"github.com/dneimke/simple-coding-sub000/internal/state"
	ws "github.com/dneimke/simple-coding-sub000/internal/websocket"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Server 服务器实例
type Server struct {
	cfg    *config.Config
	logger *zap.Logger
	clock  clockwork.Clock

	// 服务组件
	kv      repository.KVStore
	store   *state.Store
	archive *archive.Archive
	tracker *game.Tracker
	monitor *monitor.Monitor
	hub     *ws.Hub
	http    *http.Server

	// 关闭控制
	shutdownCh chan struct{}
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
}

func main() {
	// 命令行参数
	var (
		configPath  = flag.String("config", "", "配置文件路径")
		showVersion = flag.Bool("version", false, "显示版本信息")
		showHelp    = flag.Bool("help", false, "显示帮助信息")
	)

	flag.Parse()

	// 显示版本信息
	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	// 显示帮助信息
	if *showHelp {
		printHelp()
		os.Exit(0)
	}

	// 加载配置
	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Get()

	// 初始化日志系统
	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	// 设置系统参数
	setupSystem(&cfg.System)

	// 打印启动信息
	printStartInfo(cfg)

	// 创建服务器实例
	server := NewServer(cfg)

	// 启动服务器
	if err := server.Start(); err != nil {
		logger.Fatal("服务器启动失败", zap.Error(err))
	}

	// 等待退出信号
	server.WaitForShutdown()

	// 优雅关闭
	if err := server.Shutdown(); err != nil {
		logger.Error("服务器关闭失败", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("服务器已安全关闭")
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		cfg:        cfg,
		logger:     logger.GetLogger(),
		clock:      clockwork.NewRealClock(),
		shutdownCh: make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start 启动服务器
func (s *Server) Start() error {
	s.logger.Info("正在启动比赛事件记录服务...",
		zap.String("version", Version),
		zap.String("mode", s.cfg.Server.Mode),
	)

	// 初始化各个组件
	if err := s.initComponents(); err != nil {
		return errors.Wrap(err, errors.ErrUnknown, "初始化组件失败")
	}

	// 启动各个服务
	if err := s.startServices(); err != nil {
		return errors.Wrap(err, errors.ErrUnknown, "启动服务失败")
	}

	// 监听配置变化
	config.Watch(func(newCfg *config.Config) {
		s.logger.Info("配置已更新，正在重新加载...")
		s.reloadConfig(newCfg)
	})

	s.logger.Info("服务器启动成功",
		zap.String("http", s.cfg.Server.Addr()),
		zap.String("websocket", s.cfg.WebSocket.Path),
	)

	return nil
}

// initComponents 初始化组件
func (s *Server) initComponents() error {
	s.logger.Info("初始化组件...")

	// 初始化数据库
	if err := s.initDatabase(); err != nil {
		return err
	}

	s.kv = repository.NewKVStore(database.DB, repository.KVOptions{
		Namespace:  s.cfg.Storage.Namespace,
		QuotaBytes: s.cfg.Storage.QuotaBytes,
	})
	s.store = state.New()

	// 初始化归档并执行一次性迁移
	s.archive = archive.New(s.kv, archive.Options{
		Key:              s.cfg.Archive.Key,
		MaxGames:         s.cfg.Archive.MaxGames,
		WarningThreshold: s.cfg.Storage.WarningThreshold,
		Clock:            s.clock,
	})
	if err := s.archive.Migrate(s.ctx); err != nil {
		s.logger.Warn("归档迁移失败，继续使用现有记录", zap.Error(err))
	}

	// 初始化当前比赛并恢复未结束的比赛
	persister := game.NewCacheStatePersister(
		game.NewMemoryStatePersister(),
		game.NewKVStatePersister(s.kv, s.cfg.Game.StateKey),
	)
	s.tracker = game.NewTracker(s.store, s.archive, persister, game.TrackerOptions{
		Clock:        s.clock,
		TickInterval: s.cfg.Timer.TickInterval,
	})
	recovery := game.NewRecoveryManager(logger.GetModuleLogger(logger.ModuleGame), persister, s.cfg.Game.RecoveryTimeout, s.clock)
	if st, err := recovery.Recover(s.ctx, s.tracker); err != nil {
		s.logger.Warn("比赛恢复失败", zap.Error(err))
	} else if st != game.StateIdle {
		s.logger.Info("已恢复未结束的比赛", zap.String("state", string(st)))
	}

	s.monitor = monitor.New(s.archive, s.store, monitor.Options{
		Interval: s.cfg.Monitor.UsageCheckInterval,
		Clock:    s.clock,
	})
	s.hub = ws.NewHub(s.store, s.cfg.WebSocket, logger.GetModuleLogger(logger.ModuleWebSocket))

	router := api.NewRouter(api.Deps{
		DB:      database.DB,
		Tracker: s.tracker,
		Archive: s.archive,
		Layouts: layout.NewStore(s.kv),
		Store:   s.store,
		Hub:     s.hub,
		Clock:   s.clock,
	}, s.cfg, logger.GetModuleLogger(logger.ModuleAPI))

	s.http = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      router.GetEngine(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	s.logger.Info("所有组件初始化完成")
	return nil
}

// initDatabase 初始化数据库
func (s *Server) initDatabase() error {
	s.logger.Info("初始化数据库...")

	// 初始化数据库连接
	if err := database.Init(&s.cfg.Database); err != nil {
		return errors.Wrap(err, errors.ErrDatabaseConnect, "初始化数据库连接失败")
	}

	// 自动迁移数据库
	if s.cfg.Database.AutoMigrate {
		s.logger.Info("执行数据库自动迁移...")
		if err := database.AutoMigrate(); err != nil {
			return errors.Wrap(err, errors.ErrDatabaseConnect, "数据库迁移失败")
		}
	}

	// 检查数据库连接
	if !database.IsConnected(database.DB) {
		return errors.New(errors.ErrDatabaseConnect, "数据库连接检查失败")
	}

	s.logger.Info("数据库初始化完成")
	return nil
}

// startServices 启动服务
func (s *Server) startServices() error {
	s.logger.Info("启动服务...")

	// WebSocket Hub
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.hub.Run()
	}()

	// 存储监控
	if s.cfg.Monitor.Enabled {
		if err := s.monitor.Start(); err != nil {
			return err
		}
	}

	// HTTP服务器
	errCh := make(chan error, 1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP服务器异常退出", zap.Error(err))
			errCh <- err
		}
	}()

	// 端口占用等错误会立即返回
	select {
	case err := <-errCh:
		return err
	case <-time.After(200 * time.Millisecond):
	}

	s.logger.Info("所有服务启动完成")
	return nil
}

// WaitForShutdown 等待关闭信号
func (s *Server) WaitForShutdown() {
	// 创建信号通道
	sigCh := make(chan os.Signal, 1)

	// 监听系统信号
	signal.Notify(sigCh,
		syscall.SIGINT,  // Ctrl+C
		syscall.SIGTERM, // kill命令
		syscall.SIGQUIT, // Ctrl+\
	)

	// 等待信号
	sig := <-sigCh
	s.logger.Info("收到退出信号", zap.String("signal", sig.String()))

	// 发送关闭信号
	close(s.shutdownCh)
}

// Shutdown 优雅关闭服务器
func (s *Server) Shutdown() error {
	s.logger.Info("正在优雅关闭服务器...")

	// 创建超时上下文
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	// 停止接收新请求
	s.logger.Info("停止接收新请求...")
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("HTTP服务器关闭失败", zap.Error(err))
	}

	// 取消主上下文，停止后台服务
	s.cancel()
	s.hub.Stop()
	if err := s.monitor.Stop(); err != nil {
		s.logger.Warn("存储监控关闭失败", zap.Error(err))
	}

	// 等待所有服务关闭
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	// 等待关闭完成或超时
	select {
	case <-done:
		s.logger.Info("所有服务已正常关闭")
	case <-shutdownCtx.Done():
		s.logger.Warn("关闭超时，强制退出")
		return errors.New(errors.ErrTimeout, "关闭超时")
	}

	// 关闭各个组件
	if err := s.closeComponents(); err != nil {
		s.logger.Error("关闭组件失败", zap.Error(err))
		return err
	}

	// 同步日志
	logger.Cleanup()

	return nil
}

// closeComponents 关闭组件
func (s *Server) closeComponents() error {
	s.logger.Info("关闭组件...")

	// 关闭数据库连接
	if err := database.Close(); err != nil {
		s.logger.Error("关闭数据库失败", zap.Error(err))
	}

	s.logger.Info("所有组件已关闭")
	return nil
}

// reloadConfig 重新加载配置
func (s *Server) reloadConfig(newCfg *config.Config) {
	s.cfg = newCfg

	// 只有日志级别支持热更新，其余配置需要重启
	logger.SetLevel(newCfg.Log.Level)

	s.logger.Info("配置重新加载完成", zap.String("log_level", newCfg.Log.Level))
}

// setupSystem 设置系统参数
func setupSystem(cfg *config.SystemConfig) {
	// 设置时区
	if cfg.Timezone != "" {
		if loc, err := time.LoadLocation(cfg.Timezone); err == nil {
			time.Local = loc
		}
	}

	// 设置最大处理器数
	if cfg.MaxProcs > 0 {
		runtime.GOMAXPROCS(cfg.MaxProcs)
	}
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("比赛事件记录服务\n")
	fmt.Printf("版本: %s\n", Version)
	fmt.Printf("构建时间: %s\n", BuildTime)
	fmt.Printf("Git提交: %s\n", GitCommit)
	fmt.Printf("Go版本: %s\n", runtime.Version())
	fmt.Printf("操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

// printHelp 打印帮助信息
func printHelp() {
	fmt.Println("比赛事件记录服务")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  matchlog-server [选项]")
	fmt.Println()
	fmt.Println("选项:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("环境变量:")
	fmt.Println("  MATCHLOG_SERVER_PORT         监听端口")
	fmt.Println("  MATCHLOG_DATABASE_DSN        数据库连接串")
	fmt.Println("  MATCHLOG_ARCHIVE_MAX_GAMES   最多保存的比赛数")
	fmt.Println()
	fmt.Println("示例:")
	fmt.Println("  matchlog-server -config=/path/to/config.yaml")
	fmt.Println("  matchlog-server -version")
}

// printStartInfo 打印启动信息
func printStartInfo(cfg *config.Config) {
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Println("                    比赛事件记录服务")
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Printf("版本: %s | 模式: %s | PID: %d\n", Version, cfg.Server.Mode, os.Getpid())
	fmt.Printf("监听: %s | 数据库: %s\n", cfg.Server.Addr(), cfg.Database.Driver)
	fmt.Println("═══════════════════════════════════════════════════════════════")
}

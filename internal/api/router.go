package api

import (
	"net/http"

	"github.com/dneimke/simple-coding-sub000/internal/archive"
	"github.com/dneimke/simple-coding-sub000/internal/config"
	"github.com/dneimke/simple-coding-sub000/internal/database"
	"github.com/dneimke/simple-coding-sub000/internal/game"
	"github.com/dneimke/simple-coding-sub000/internal/layout"
	"github.com/dneimke/simple-coding-sub000/internal/middleware"
	"github.com/dneimke/simple-coding-sub000/internal/state"
	ws "github.com/dneimke/simple-coding-sub000/internal/websocket"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps 路由依赖
type Deps struct {
	DB      *gorm.DB
	Tracker *game.Tracker
	Archive *archive.Archive
	Layouts *layout.Store
	Store   *state.Store
	Hub     *ws.Hub
	Clock   clockwork.Clock
}

// Router API路由器
type Router struct {
	engine  *gin.Engine
	deps    Deps
	cfg     *config.Config
	game    *GameHandler
	archive *ArchiveHandler
	layout  *LayoutHandler
	state   *StateHandler
	log     *zap.Logger
}

// NewRouter 创建路由器
func NewRouter(deps Deps, cfg *config.Config, log *zap.Logger) *Router {
	if cfg == nil {
		cfg = config.Default()
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建Gin引擎
	engine := gin.New()

	// 全局中间件
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Recovery())
	engine.Use(middleware.RequestLogger())

	router := &Router{
		engine:  engine,
		deps:    deps,
		cfg:     cfg,
		game:    NewGameHandler(deps.Tracker, log),
		archive: NewArchiveHandler(deps.Archive, deps.Clock, log),
		layout:  NewLayoutHandler(deps.Layouts, log),
		state:   NewStateHandler(deps.Store),
		log:     log,
	}

	// 设置路由
	router.setupRoutes()

	return router
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	// 健康检查
	r.engine.GET("/health", r.healthCheck)

	// API v1路由组
	v1 := r.engine.Group("/api/v1")
	{
		// 当前比赛
		g := v1.Group("/game")
		{
			g.GET("", r.game.Get)
			g.DELETE("", r.game.Clear)
			g.POST("/new", r.game.NewGame)
			g.POST("/pause", r.game.Pause)
			g.POST("/resume", r.game.Resume)
			g.POST("/events", r.game.AddEvent)
			g.POST("/complete", r.game.Complete)
			g.GET("/timeline", r.game.Timeline)
			g.GET("/xml", r.game.IntervalXML)
			g.GET("/stats", r.game.Statistics)
		}

		// 比赛归档
		a := v1.Group("/archive")
		{
			a.GET("", r.archive.List)
			a.GET("/usage", r.archive.Usage)
			a.POST("/import", r.archive.ImportXML)
			a.POST("/import/batch", r.archive.ImportBatch)
			a.GET("/:index", r.archive.Get)
			a.PATCH("/:index", r.archive.Update)
			a.DELETE("/:index", r.archive.Remove)
			a.GET("/:index/xml", r.archive.ExportXML)
		}

		// 按钮布局
		v1.GET("/layout", r.layout.Get)
		v1.PUT("/layout", r.layout.Put)
		v1.DELETE("/layout", r.layout.Reset)

		// 状态树
		v1.GET("/state", r.state.Get)
		v1.PUT("/state", r.state.Put)
	}

	// 接口文档
	registerOpenAPIRoutes(r.engine)
	registerSwaggerRoutes(r.engine)

	// WebSocket路由
	if r.deps.Hub != nil {
		r.engine.GET(r.cfg.WebSocket.Path, gin.WrapH(r.deps.Hub))
	}

	// 404处理
	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"message": "接口不存在",
		})
	})
}

// healthCheck 健康检查
func (r *Router) healthCheck(c *gin.Context) {
	// 检查数据库连接
	if r.deps.DB != nil && !database.IsConnected(r.deps.DB) {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"message": "数据库连接失败",
		})
		return
	}

	body := gin.H{
		"status":  "healthy",
		"message": "服务运行正常",
	}
	if r.deps.Tracker != nil {
		body["game"] = r.deps.Tracker.State()
	}
	if r.deps.Hub != nil {
		body["clients"] = r.deps.Hub.GetOnlineCount()
	}
	c.JSON(http.StatusOK, body)
}

// GetEngine 获取Gin引擎（用于测试）
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}

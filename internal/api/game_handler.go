package api

import (
	"net/http"
	"strings"

	apperrors "github.com/dneimke/simple-coding-sub000/internal/errors"
	"github.com/dneimke/simple-coding-sub000/internal/eventlog"
	"github.com/dneimke/simple-coding-sub000/internal/game"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GameHandler 当前比赛处理器
type GameHandler struct {
	tracker *game.Tracker
	logger  *zap.Logger
}

// NewGameHandler 创建当前比赛处理器
func NewGameHandler(tracker *game.Tracker, logger *zap.Logger) *GameHandler {
	return &GameHandler{tracker: tracker, logger: logger}
}

// AddEventRequest 记录事件请求，未提供 offsetMs 时使用计时器读数
type AddEventRequest struct {
	Name     string `json:"name" binding:"required"`
	OffsetMs *int64 `json:"offsetMs"`
}

// AddEventResponse 记录事件响应
type AddEventResponse struct {
	Accepted bool           `json:"accepted"`
	Event    eventlog.Event `json:"event"`
}

// CompleteRequest 结束比赛请求
type CompleteRequest struct {
	Label *string `json:"label"`
}

// TimelineResponse 时间线响应
type TimelineResponse struct {
	Events      []eventlog.Event `json:"events"`
	Placeholder string           `json:"placeholder,omitempty"`
}

// StatisticsResponse 统计响应
type StatisticsResponse struct {
	Stats       []eventlog.StatEntry `json:"stats"`
	Placeholder string               `json:"placeholder,omitempty"`
}

// Get 当前比赛快照
// @Summary 当前比赛快照
// @Tags Game
// @Produce json
// @Success 200 {object} Response
// @Router /api/v1/game [get]
func (h *GameHandler) Get(c *gin.Context) {
	ok(c, h.tracker.Snapshot())
}

// NewGame 开始新比赛
// @Summary 开始新比赛
// @Tags Game
// @Produce json
// @Success 201 {object} Response
// @Failure 409 {object} apperrors.ErrorResponse
// @Router /api/v1/game/new [post]
func (h *GameHandler) NewGame(c *gin.Context) {
	session, err := h.tracker.NewGame(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	created(c, session)
}

// Pause 暂停计时
// @Summary 暂停计时
// @Tags Game
// @Produce json
// @Success 200 {object} Response
// @Failure 409 {object} apperrors.ErrorResponse
// @Router /api/v1/game/pause [post]
func (h *GameHandler) Pause(c *gin.Context) {
	session, err := h.tracker.Pause(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, session)
}

// Resume 继续计时
// @Summary 继续计时
// @Tags Game
// @Produce json
// @Success 200 {object} Response
// @Failure 409 {object} apperrors.ErrorResponse
// @Router /api/v1/game/resume [post]
func (h *GameHandler) Resume(c *gin.Context) {
	session, err := h.tracker.Resume(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, session)
}

// AddEvent 记录事件
// @Summary 记录事件
// @Description 未提供 offsetMs 时使用计时器当前读数
// @Tags Game
// @Accept json
// @Produce json
// @Param request body AddEventRequest true "事件"
// @Success 201 {object} AddEventResponse
// @Failure 400 {object} apperrors.ErrorResponse
// @Failure 409 {object} apperrors.ErrorResponse
// @Failure 422 {object} apperrors.ErrorResponse
// @Router /api/v1/game/events [post]
func (h *GameHandler) AddEvent(c *gin.Context) {
	var req AddEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	var (
		event    eventlog.Event
		accepted bool
	)
	if req.OffsetMs != nil {
		event = eventlog.Event{Name: strings.TrimSpace(req.Name), OffsetMs: *req.OffsetMs}
		accepted = h.tracker.AddEvent(ctx, req.Name, *req.OffsetMs)
	} else {
		event, accepted = h.tracker.LogEvent(ctx, req.Name)
	}

	if !accepted {
		if h.tracker.State() != game.StateRunning {
			fail(c, apperrors.New(apperrors.ErrGameNotRunning, "事件未记录"))
			return
		}
		fail(c, apperrors.New(apperrors.ErrInvalidEventData, "事件名不能为空且偏移不能为负"))
		return
	}
	created(c, AddEventResponse{Accepted: true, Event: event})
}

// Complete 结束比赛并归档
// @Summary 结束比赛并归档
// @Tags Game
// @Accept json
// @Produce json
// @Param request body CompleteRequest false "标签"
// @Success 201 {object} archive.SavedGame
// @Failure 409 {object} apperrors.ErrorResponse
// @Failure 507 {object} apperrors.ErrorResponse
// @Router /api/v1/game/complete [post]
func (h *GameHandler) Complete(c *gin.Context) {
	var req CompleteRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	saved, err := h.tracker.Complete(c.Request.Context(), req.Label)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, saved)
}

// Clear 丢弃当前比赛
// @Summary 丢弃当前比赛
// @Tags Game
// @Produce json
// @Success 200 {object} Response
// @Router /api/v1/game [delete]
func (h *GameHandler) Clear(c *gin.Context) {
	if err := h.tracker.Clear(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	ok(c, h.tracker.Snapshot())
}

// Timeline 按时间倒序的事件列表
// @Summary 时间线
// @Tags Game
// @Produce json
// @Success 200 {object} TimelineResponse
// @Router /api/v1/game/timeline [get]
func (h *GameHandler) Timeline(c *gin.Context) {
	views := h.tracker.Views()
	ok(c, TimelineResponse{Events: views.Timeline, Placeholder: views.TimelineEmpty})
}

// IntervalXML 区间XML片段
// @Summary 区间XML片段
// @Tags Game
// @Produce xml
// @Success 200 {string} string
// @Router /api/v1/game/xml [get]
func (h *GameHandler) IntervalXML(c *gin.Context) {
	c.Data(http.StatusOK, "application/xml; charset=utf-8", []byte(h.tracker.Views().IntervalXML))
}

// Statistics 事件统计
// @Summary 事件统计
// @Tags Game
// @Produce json
// @Success 200 {object} StatisticsResponse
// @Router /api/v1/game/stats [get]
func (h *GameHandler) Statistics(c *gin.Context) {
	views := h.tracker.Views()
	ok(c, StatisticsResponse{Stats: views.Statistics, Placeholder: views.StatisticsEmpty})
}

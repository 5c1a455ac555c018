package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/dneimke/simple-coding-sub000/internal/layout"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// LayoutHandler 按钮布局处理器
type LayoutHandler struct {
	layouts *layout.Store
	logger  *zap.Logger
}

// NewLayoutHandler 创建布局处理器
func NewLayoutHandler(layouts *layout.Store, logger *zap.Logger) *LayoutHandler {
	return &LayoutHandler{layouts: layouts, logger: logger}
}

// isYAML 请求或查询参数是否指定YAML
func isYAML(contentType, format string) bool {
	return strings.Contains(contentType, "yaml") || format == "yaml"
}

// Get 当前布局，?format=yaml 返回YAML
// @Summary 当前布局
// @Tags Layout
// @Produce json,yaml
// @Param format query string false "yaml"
// @Success 200 {object} layout.Config
// @Router /api/v1/layout [get]
func (h *LayoutHandler) Get(c *gin.Context) {
	cfg := h.layouts.Load(c.Request.Context())
	if c.Query("format") == "yaml" {
		data, err := layout.ToYAML(cfg)
		if err != nil {
			fail(c, err)
			return
		}
		c.Data(http.StatusOK, "application/yaml; charset=utf-8", data)
		return
	}
	ok(c, cfg)
}

// Put 替换布局，支持JSON或YAML请求体
// @Summary 替换布局
// @Tags Layout
// @Accept json,yaml
// @Produce json
// @Param request body layout.Config true "布局"
// @Success 200 {object} layout.Config
// @Failure 422 {object} apperrors.ErrorResponse
// @Router /api/v1/layout [put]
func (h *LayoutHandler) Put(c *gin.Context) {
	data, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20))
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	var cfg layout.Config
	if isYAML(c.ContentType(), c.Query("format")) {
		cfg, err = layout.ParseYAML(data)
	} else {
		cfg, err = layout.ParseJSON(data)
	}
	if err != nil {
		fail(c, err)
		return
	}

	if err := h.layouts.Save(c.Request.Context(), cfg); err != nil {
		fail(c, err)
		return
	}

	h.logger.Info("布局已更新", zap.Int("rows", len(cfg.RowDefs)), zap.Int("events", len(cfg.Events())))
	ok(c, cfg)
}

// Reset 恢复默认布局
// @Summary 恢复默认布局
// @Tags Layout
// @Produce json
// @Success 200 {object} layout.Config
// @Router /api/v1/layout [delete]
func (h *LayoutHandler) Reset(c *gin.Context) {
	if err := h.layouts.Reset(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	ok(c, layout.Default())
}

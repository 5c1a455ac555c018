package api

import (
	"strings"

	"github.com/dneimke/simple-coding-sub000/internal/state"
	"github.com/gin-gonic/gin"
)

// StateHandler 状态树处理器
type StateHandler struct {
	store *state.Store
}

// NewStateHandler 创建状态树处理器
func NewStateHandler(store *state.Store) *StateHandler {
	return &StateHandler{store: store}
}

// SetStateRequest 写入状态请求
type SetStateRequest struct {
	Path  string      `json:"path" binding:"required"`
	Value interface{} `json:"value"`
	Merge bool        `json:"merge"`
}

// StateResponse 状态响应
type StateResponse struct {
	Path  string      `json:"path"`
	Value interface{} `json:"value"`
}

// writable 只允许通过接口修改 ui 子树，game 子树由比赛逻辑维护
func writable(path string) bool {
	return path == state.PathUI || strings.HasPrefix(path, state.PathUI+".")
}

// Get 读取路径上的值，path 为空时返回整棵树
// @Summary 读取状态树
// @Tags State
// @Produce json
// @Param path query string false "点分路径"
// @Success 200 {object} StateResponse
// @Router /api/v1/state [get]
func (h *StateHandler) Get(c *gin.Context) {
	path := c.Query("path")
	ok(c, StateResponse{Path: path, Value: h.store.Get(path)})
}

// Put 写入 ui 子树
// @Summary 写入 ui 子树
// @Tags State
// @Accept json
// @Produce json
// @Param request body SetStateRequest true "路径与值"
// @Success 200 {object} StateResponse
// @Failure 400 {object} apperrors.ErrorResponse
// @Router /api/v1/state [put]
func (h *StateHandler) Put(c *gin.Context) {
	var req SetStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if !writable(req.Path) {
		badRequest(c, "只能修改 ui 路径: "+req.Path)
		return
	}
	if _, isMap := req.Value.(map[string]interface{}); req.Path == state.PathUI && !isMap {
		badRequest(c, "ui 节点只能设置为对象")
		return
	}

	h.store.Set(req.Path, req.Value, req.Merge)
	ok(c, StateResponse{Path: req.Path, Value: h.store.Get(req.Path)})
}

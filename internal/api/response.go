package api

import (
	"net/http"

	apperrors "github.com/dneimke/simple-coding-sub000/internal/errors"
	"github.com/dneimke/simple-coding-sub000/internal/logger"
	"github.com/dneimke/simple-coding-sub000/internal/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response 成功响应
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

func created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Success: true, Data: data})
}

// fail 输出统一错误响应，非 AppError 按未知错误处理
func fail(c *gin.Context, err error) {
	appErr, isApp := apperrors.As(err)
	if !isApp {
		appErr = apperrors.Wrap(err, apperrors.ErrUnknown)
	}

	status := appErr.HTTPStatus()
	if status >= http.StatusInternalServerError {
		logger.GetModuleLogger(logger.ModuleAPI).Error("请求失败",
			zap.String("path", c.Request.URL.Path),
			zap.Error(appErr))
	}

	// 调用栈只写日志，不返回给客户端
	public := *appErr
	public.Stack = nil
	c.AbortWithStatusJSON(status, apperrors.NewErrorResponse(&public, middleware.GetRequestID(c)))
}

func badRequest(c *gin.Context, details string) {
	fail(c, apperrors.New(apperrors.ErrInvalidParam, details))
}

package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode 错误码类型
type ErrorCode int

// 错误码定义（按模块分组）
const (
	// 通用错误 (1000-1999)
	ErrUnknown       ErrorCode = 1000
	ErrInvalidParam  ErrorCode = 1001
	ErrNotFound      ErrorCode = 1002
	ErrAlreadyExists ErrorCode = 1003
	ErrTimeout       ErrorCode = 1005

	// 比赛错误 (2000-2999)
	ErrGameNotStarted     ErrorCode = 2000
	ErrGameAlreadyStarted ErrorCode = 2001
	ErrGameNotRunning     ErrorCode = 2002
	ErrMissingCompletedAt ErrorCode = 2003
	ErrGameStateError     ErrorCode = 2004

	// 通信错误 (4000-4999)
	ErrWebSocketSend ErrorCode = 4001
	ErrMessageFormat ErrorCode = 4007

	// 存储错误 (5000-5999)
	ErrDatabaseConnect      ErrorCode = 5000
	ErrDatabaseQuery        ErrorCode = 5001
	ErrStorageWrite         ErrorCode = 5002
	ErrStorageRead          ErrorCode = 5003
	ErrStorageQuotaExceeded ErrorCode = 5004
	ErrDataIntegrity        ErrorCode = 5006

	// 配置错误 (6000-6999)
	ErrConfigLoad     ErrorCode = 6000
	ErrConfigParse    ErrorCode = 6001
	ErrConfigValidate ErrorCode = 6002
	ErrConfigMissing  ErrorCode = 6003

	// 导入校验错误 (8000-8999)
	ErrXMLMalformed      ErrorCode = 8000
	ErrNoEventsFound     ErrorCode = 8001
	ErrInvalidEventData  ErrorCode = 8002
	ErrInvalidImportData ErrorCode = 8003
)

// 错误码消息映射
var errorMessages = map[ErrorCode]string{
	// 通用错误
	ErrUnknown:       "未知错误",
	ErrInvalidParam:  "无效的参数",
	ErrNotFound:      "资源未找到",
	ErrAlreadyExists: "资源已存在",
	ErrTimeout:       "操作超时",

	// 比赛错误
	ErrGameNotStarted:     "比赛未开始",
	ErrGameAlreadyStarted: "比赛已经开始",
	ErrGameNotRunning:     "比赛计时未运行",
	ErrMissingCompletedAt: "比赛缺少结束时间",
	ErrGameStateError:     "比赛状态错误",

	// 通信错误
	ErrWebSocketSend: "WebSocket发送失败",
	ErrMessageFormat: "消息格式错误",

	// 存储错误
	ErrDatabaseConnect:      "数据库连接失败",
	ErrDatabaseQuery:        "数据库查询失败",
	ErrStorageWrite:         "存储写入失败",
	ErrStorageRead:          "存储读取失败",
	ErrStorageQuotaExceeded: "存储空间不足，请导出并删除旧比赛",
	ErrDataIntegrity:        "数据完整性错误",

	// 配置错误
	ErrConfigLoad:     "配置加载失败",
	ErrConfigParse:    "配置解析失败",
	ErrConfigValidate: "配置验证失败",
	ErrConfigMissing:  "配置项缺失",

	// 导入校验错误
	ErrXMLMalformed:      "XML格式错误",
	ErrNoEventsFound:     "文件中没有找到事件",
	ErrInvalidEventData:  "事件数据无效",
	ErrInvalidImportData: "导入数据无效",
}

// AppError 应用错误结构
type AppError struct {
	Code    ErrorCode    `json:"code"`            // 错误码
	Message string       `json:"message"`         // 错误消息
	Details string       `json:"details"`         // 详细信息
	Cause   error        `json:"-"`               // 原始错误
	Stack   []StackFrame `json:"stack,omitempty"` // 调用栈
}

// StackFrame 调用栈帧
type StackFrame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%d] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 返回原始错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails 添加详细信息
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithCause 添加原因错误
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	if cause != nil && e.Details == "" {
		e.Details = cause.Error()
	}
	return e
}

// New 创建新的应用错误
func New(code ErrorCode, details ...string) *AppError {
	message, ok := errorMessages[code]
	if !ok {
		message = errorMessages[ErrUnknown]
	}

	err := &AppError{
		Code:    code,
		Message: message,
	}

	if len(details) > 0 {
		err.Details = strings.Join(details, "; ")
	}

	// 捕获调用栈
	err.captureStack(2)

	return err
}

// Newf 创建格式化的应用错误
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	details := fmt.Sprintf(format, args...)
	return New(code, details)
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, details ...string) *AppError {
	if err == nil {
		return nil
	}

	// 如果已经是AppError，保留原始错误码
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		if len(details) > 0 {
			appErr.Details = strings.Join(details, "; ") + "; " + appErr.Details
		}
		return appErr
	}

	appErr = New(code, details...)
	appErr.Cause = err
	if appErr.Details == "" {
		appErr.Details = err.Error()
	}

	return appErr
}

// Wrapf 包装格式化错误
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	details := fmt.Sprintf(format, args...)
	return Wrap(err, code, details)
}

// As 提取错误链中的AppError
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if err == nil || !stderrors.As(err, &appErr) {
		return nil, false
	}
	return appErr, true
}

// Is 判断错误是否为指定错误码
func Is(err error, code ErrorCode) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}

// GetCode 获取错误码
func GetCode(err error) ErrorCode {
	if err == nil {
		return 0
	}

	if appErr, ok := As(err); ok {
		return appErr.Code
	}

	return ErrUnknown
}

// captureStack 捕获调用栈
func (e *AppError) captureStack(skip int) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)

	if n > 0 {
		frames := runtime.CallersFrames(pcs[:n])
		for {
			frame, more := frames.Next()

			// 跳过runtime和本包的调用
			if strings.Contains(frame.Function, "runtime.") ||
				strings.Contains(frame.Function, "simple-coding-sub000/internal/errors") {
				if !more {
					break
				}
				continue
			}

			e.Stack = append(e.Stack, StackFrame{
				Function: frame.Function,
				File:     frame.File,
				Line:     frame.Line,
			})

			if !more {
				break
			}

			// 只保留前10个栈帧
			if len(e.Stack) >= 10 {
				break
			}
		}
	}
}

// GetStack 获取格式化的调用栈
func (e *AppError) GetStack() string {
	if len(e.Stack) == 0 {
		return ""
	}

	var builder strings.Builder
	for i, frame := range e.Stack {
		builder.WriteString(fmt.Sprintf("%d. %s\n   %s:%d\n",
			i+1, frame.Function, frame.File, frame.Line))
	}

	return builder.String()
}

// HTTPStatus 返回对应的HTTP状态码
func (e *AppError) HTTPStatus() int {
	switch {
	case e.Code == ErrNotFound:
		return 404 // Not Found
	case e.Code == ErrInvalidParam:
		return 400 // Bad Request
	case e.Code == ErrAlreadyExists:
		return 409 // Conflict
	case e.Code == ErrTimeout:
		return 408 // Request Timeout
	case e.Code >= 2000 && e.Code <= 2999:
		return 409 // Conflict
	case e.Code == ErrStorageQuotaExceeded:
		return 507 // Insufficient Storage
	case e.Code >= 5000 && e.Code <= 5999:
		return 503 // Service Unavailable
	case e.Code == ErrConfigValidate, e.Code == ErrConfigParse:
		return 422 // Unprocessable Entity
	case e.Code >= 8000 && e.Code <= 8999:
		return 422 // Unprocessable Entity
	default:
		return 500 // Internal Server Error
	}
}

// IsValidation 判断是否为校验类错误（需要提示用户）
func IsValidation(err error) bool {
	code := GetCode(err)
	return code == ErrConfigValidate || (code >= 8000 && code <= 8999)
}

// IsQuotaExceeded 判断是否为存储空间不足
func IsQuotaExceeded(err error) bool {
	return Is(err, ErrStorageQuotaExceeded)
}

// IsCritical 判断是否为严重错误
func IsCritical(err error) bool {
	if err == nil {
		return false
	}

	code := GetCode(err)
	switch code {
	case ErrDatabaseConnect,
		ErrConfigLoad,
		ErrConfigMissing,
		ErrDataIntegrity:
		return true
	default:
		return false
	}
}

// ErrorResponse API错误响应结构
type ErrorResponse struct {
	Success   bool      `json:"success"`
	Error     *AppError `json:"error,omitempty"`
	Hint      string    `json:"hint,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(err *AppError, requestID string) *ErrorResponse {
	resp := &ErrorResponse{
		Success:   false,
		Error:     err,
		RequestID: requestID,
		Timestamp: time.Now().Unix(),
	}
	if err != nil && err.Code == ErrStorageQuotaExceeded {
		resp.Hint = "export_and_delete_old_games"
	}
	return resp
}

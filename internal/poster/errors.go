package poster

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/literacy-poster/internal/history"
	"github.com/yourusername/literacy-poster/internal/jobs"
	"github.com/yourusername/literacy-poster/internal/kie"
)

const (
	CodeInvalidInput         = "INVALID_INPUT"
	CodeConfigError          = "CONFIG_ERROR"
	CodeRemoteError          = "REMOTE_ERROR"
	CodeJobFailed            = "JOB_FAILED"
	CodeJobTimeout           = "JOB_TIMEOUT"
	CodeConfirmationRequired = "CONFIRMATION_REQUIRED"
	CodeRequestCanceled      = "REQUEST_CANCELED"
	CodeNotFound             = "NOT_FOUND"
	CodeInternal             = "INTERNAL_ERROR"
)

const (
	msgMissingAPIKey        = "未配置 API Key"
	msgThemeTitleRequired   = "主题和标题不能为空"
	msgItemsRequired        = "请提供有效的生成项目列表"
	msgItemFieldsRequired   = "每个项目必须包含 theme 和 title"
	msgTaskIDRequired       = "Task ID 不能为空"
	msgInvalidWaitParams    = "maxRetries 和 interval 必须是非负整数"
	msgWaitRetriesTooLarge  = "maxRetries 不能超过 %d"
	msgConfirmationRequired = "清空历史记录需要确认（confirm=true）"
	msgInvalidHistoryEntry  = "历史记录必须包含 taskId、theme、title 和 imageUrl"
	msgRemoteUnavailable    = "图片生成服务请求失败"
	msgRequestCanceled      = "请求已取消"
	msgInternal             = "服务器内部错误"
	msgAPINotFound          = "API 路由不存在"
)

// Error は利用者に返すエラーコードとメッセージです。
type Error struct {
	Code    string
	Message string
	Status  int
}

func (e *Error) Error() string {
	return e.Message
}

func invalidInput(message string) *Error {
	return &Error{Code: CodeInvalidInput, Message: message, Status: http.StatusBadRequest}
}

// outcomeError はリモート失敗とローカルタイムアウトをエラーに変換します。成功時は nil です。
func outcomeError(outcome *jobs.Outcome) error {
	switch {
	case outcome.Succeeded():
		return nil
	case outcome.TimedOut():
		return &Error{Code: CodeJobTimeout, Message: outcome.Message(), Status: http.StatusGatewayTimeout}
	default:
		return &Error{Code: CodeJobFailed, Message: outcome.Message(), Status: http.StatusBadGateway}
	}
}

// errorMessage はバッチ結果に載せる1項目分のメッセージを返します。
func errorMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	if apiErr, ok := kie.IsAPIError(err); ok {
		return apiErr.Message
	}
	if errors.Is(err, kie.ErrTransport) {
		return transportMessage(err)
	}
	return err.Error()
}

// transportMessage は通信失敗の元のメッセージを汎用メッセージに添えます。
func transportMessage(err error) string {
	if tErr, ok := kie.IsTransportError(err); ok && tErr.Cause() != "" {
		return msgRemoteUnavailable + ": " + tErr.Cause()
	}
	return msgRemoteUnavailable
}

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

func respondWithError(c *gin.Context, err error) {
	status, code, message := classify(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, gin.H{
		"success": false,
		"error":   message,
		"code":    code,
	})
}

func classify(err error) (int, string, string) {
	var e *Error
	switch {
	case errors.As(err, &e):
		status := e.Status
		if status == 0 {
			status = http.StatusBadRequest
		}
		return status, e.Code, e.Message
	case errors.Is(err, kie.ErrMissingAPIKey):
		return http.StatusInternalServerError, CodeConfigError, msgMissingAPIKey
	case errors.Is(err, kie.ErrEmptyJobID):
		return http.StatusBadRequest, CodeInvalidInput, msgTaskIDRequired
	case errors.Is(err, kie.ErrEmptyPrompt):
		return http.StatusBadRequest, CodeInvalidInput, msgThemeTitleRequired
	case errors.Is(err, history.ErrConfirmationRequired):
		return http.StatusConflict, CodeConfirmationRequired, msgConfirmationRequired
	case errors.Is(err, history.ErrInvalidEntry):
		return http.StatusBadRequest, CodeInvalidInput, msgInvalidHistoryEntry
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout, CodeRequestCanceled, msgRequestCanceled
	}
	if apiErr, ok := kie.IsAPIError(err); ok {
		return http.StatusBadGateway, CodeRemoteError, apiErr.Message
	}
	if errors.Is(err, kie.ErrTransport) {
		return http.StatusBadGateway, CodeRemoteError, transportMessage(err)
	}
	return http.StatusInternalServerError, CodeInternal, msgInternal
}

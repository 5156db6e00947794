package diagnosis

import (
	"errors"
	"net/http"

	model "github.com/zhouzirui/sympcheck/backend/internal/model/diagnosis"
	service "github.com/zhouzirui/sympcheck/backend/internal/service/diagnosis"
)

const codeNotFound = "not_found"

// classify 将服务层错误映射为 HTTP 状态码、错误码与对外消息。
// 内部错误只返回通用消息，细节写入日志。
func classify(err error) (status int, code, message string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, model.CodeValidation, err.Error()
	case errors.Is(err, model.ErrRateLimited):
		return http.StatusTooManyRequests, model.CodeRateLimited, "too many requests, please retry shortly"
	case errors.Is(err, service.ErrInferenceUnavailable):
		return http.StatusServiceUnavailable, model.CodeUnavailable, "inference service unavailable"
	case errors.Is(err, model.ErrConditionNotFound):
		return http.StatusNotFound, codeNotFound, "condition not found"
	default:
		return http.StatusInternalServerError, model.CodeInternal, "an internal error occurred"
	}
}

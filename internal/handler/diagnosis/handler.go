package diagnosis

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	model "github.com/zhouzirui/sympcheck/backend/internal/model/diagnosis"
	service "github.com/zhouzirui/sympcheck/backend/internal/service/diagnosis"
	"github.com/zhouzirui/sympcheck/backend/pkg/utils"
)

// maxBodyBytes 限制单个请求体大小。
const maxBodyBytes = 1 << 20

// Handler 问诊服务的HTTP处理器
type Handler struct {
	controller *service.Controller
	log        *zap.Logger
}

// New 创建问诊处理器
func New(controller *service.Controller, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{controller: controller, log: logger}
}

// RegisterRoutes 注册问诊相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/diagnosis", func(r chi.Router) {
		r.Post("/interactive", h.handleInteractive)
		r.Post("/analyze", h.handleAnalyze)
		r.Get("/condition/{id}", h.handleCondition)
		r.Get("/ws", h.handleWebSocket)
	})
}

// handleInteractive 返回对话的下一步：追问、总结或错误。
func (h *Handler) handleInteractive(w http.ResponseWriter, r *http.Request) {
	var req model.SymptomRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondJSON(w, http.StatusBadRequest, model.NewError(model.CodeValidation, "invalid request body"))
		return
	}

	resp, err := h.controller.Next(r.Context(), req)
	if err != nil {
		status, _, _ := classify(err)
		utils.RespondJSON(w, status, resp)
		return
	}

	utils.RespondJSON(w, http.StatusOK, resp)
}

// handleAnalyze 返回按置信度排序的候选病症。
func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req model.DiagnosisRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	conditions, err := h.controller.Analyze(r.Context(), req)
	if err != nil {
		status, _, message := classify(err)
		utils.RespondError(w, status, message)
		return
	}

	utils.RespondJSON(w, http.StatusOK, conditions)
}

// handleCondition 返回单个病症的详情。
func (h *Handler) handleCondition(w http.ResponseWriter, r *http.Request) {
	detail, err := h.controller.ConditionDetails(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		status, _, message := classify(err)
		utils.RespondError(w, status, message)
		return
	}

	utils.RespondJSON(w, http.StatusOK, detail)
}

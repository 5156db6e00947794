package diagnosis

import (
	"context"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	model "github.com/zhouzirui/sympcheck/backend/internal/model/diagnosis"
)

const (
	frameInteractive = "interactive"
	frameAnalyze     = "analyze"
	frameResponse    = "response"
	frameError       = "error"

	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	writeWait    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

type inboundFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId"`
	Data      json.RawMessage `json:"data"`
}

type outboundFrame struct {
	Type      string      `json:"type"`
	RequestID string      `json:"requestId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type errorData struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// handleWebSocket 处理WebSocket连接。每个连接同一时间只处理一个请求，
// 连接断开会取消正在进行的推理调用。
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("diagnosis.Handler.handleWebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	log := h.log.With(zap.String("connection_id", connID))
	log.Info("diagnosis websocket connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadLimit(maxBodyBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go pingLoop(ctx, conn)

	// Reads run apart from request handling so a closed connection cancels
	// the inference call in flight.
	frames := make(chan []byte)
	go readLoop(ctx, cancel, conn, frames, log)

	for {
		select {
		case <-ctx.Done():
			log.Info("diagnosis websocket closed")
			return
		case raw := <-frames:
			frame := h.handleFrame(ctx, raw)
			if ctx.Err() != nil {
				log.Info("diagnosis websocket closed during request", zap.String("request_id", frame.RequestID))
				return
			}
			if err := writeFrame(conn, frame); err != nil {
				log.Warn("diagnosis websocket write failed", zap.Error(err))
				return
			}
		}
	}
}

// readLoop 读取客户端消息并交给处理循环，读取失败时取消连接上下文。
func readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, frames chan<- []byte, log *zap.Logger) {
	defer cancel()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("diagnosis websocket read failed", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		select {
		case frames <- raw:
		case <-ctx.Done():
			return
		}
	}
}

// handleFrame 解析并执行一条客户端消息，返回要写回的帧。
func (h *Handler) handleFrame(ctx context.Context, raw []byte) outboundFrame {
	var in inboundFrame
	if err := json.Unmarshal(raw, &in); err != nil {
		return newErrorFrame("", model.CodeValidation, "invalid message")
	}
	if in.RequestID == "" {
		in.RequestID = uuid.NewString()
	}

	switch in.Type {
	case frameInteractive:
		var req model.SymptomRequest
		if err := json.Unmarshal(in.Data, &req); err != nil {
			return newErrorFrame(in.RequestID, model.CodeValidation, "invalid request body")
		}
		resp, err := h.controller.Next(ctx, req)
		if err != nil {
			return newErrorFrame(in.RequestID, resp.Code, resp.Error)
		}
		return newFrame(frameResponse, in.RequestID, resp)

	case frameAnalyze:
		var req model.DiagnosisRequest
		if err := json.Unmarshal(in.Data, &req); err != nil {
			return newErrorFrame(in.RequestID, model.CodeValidation, "invalid request body")
		}
		conditions, err := h.controller.Analyze(ctx, req)
		if err != nil {
			_, code, message := classify(err)
			return newErrorFrame(in.RequestID, code, message)
		}
		return newFrame(frameResponse, in.RequestID, conditions)

	default:
		return newErrorFrame(in.RequestID, model.CodeValidation, "unsupported message type: "+in.Type)
	}
}

func newFrame(frameType, requestID string, data interface{}) outboundFrame {
	return outboundFrame{
		Type:      frameType,
		RequestID: requestID,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
}

func newErrorFrame(requestID, code, message string) outboundFrame {
	return newFrame(frameError, requestID, errorData{Code: code, Error: message})
}

func writeFrame(conn *websocket.Conn, frame outboundFrame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// pingLoop 定期发送ping消息。WriteControl 可与读写循环并发调用。
func pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

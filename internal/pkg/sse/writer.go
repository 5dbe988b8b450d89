package sse

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

// FormatFrame 将事件负载编码为 SSE data 帧
func FormatFrame(payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal sse frame: %w", err)
	}
	return "data: " + string(data) + "\n\n", nil
}

// Writer 单连接 SSE 响应写入器
//
// 每个流式请求对应一个 Writer; 写入顺序即投递顺序。
type Writer struct {
	ctx    *gin.Context
	closed atomic.Bool
}

// NewWriter 创建 Writer 并设置 SSE 响应头
func NewWriter(c *gin.Context) *Writer {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	return &Writer{ctx: c}
}

// Send 写入一个事件并立即刷新
func (w *Writer) Send(payload any) error {
	if w.closed.Load() {
		return fmt.Errorf("sse writer closed")
	}

	frame, err := FormatFrame(payload)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprint(w.ctx.Writer, frame); err != nil {
		w.closed.Store(true)
		return err
	}
	w.ctx.Writer.Flush()
	return nil
}

// Comment 写入注释行(心跳)
func (w *Writer) Comment(text string) error {
	if w.closed.Load() {
		return fmt.Errorf("sse writer closed")
	}
	if _, err := fmt.Fprintf(w.ctx.Writer, ": %s\n\n", text); err != nil {
		w.closed.Store(true)
		return err
	}
	w.ctx.Writer.Flush()
	return nil
}

// Gone 返回客户端断开通知通道
func (w *Writer) Gone() <-chan struct{} {
	return w.ctx.Request.Context().Done()
}

// Closed 检查连接是否已失效
func (w *Writer) Closed() bool {
	return w.closed.Load()
}

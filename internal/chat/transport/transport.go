package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/lk2023060901/copilot-chat/internal/chat/types"
	"github.com/lk2023060901/copilot-chat/internal/pkg/logger"
	"go.uber.org/zap"
)

const dataPrefix = "data: "

// maxLineSize bounds a single SSE frame. Widget payloads can be large.
const maxLineSize = 1 << 20

// StreamHandler receives the decoded stream lifecycle. OnEvent is called
// for every frame in arrival order from a single goroutine. OnError is
// called for network-level failures only; cancellation is not an error.
// OnComplete fires when the stream ends, including after a synthetic HTTP
// error event.
type StreamHandler struct {
	OnEvent    func(*types.StreamEvent)
	OnError    func(error)
	OnComplete func()
}

// CancelFunc aborts an in-flight stream. Safe to call multiple times and
// after the stream has already finished.
type CancelFunc func()

// Transport issues protocol calls against the chat endpoint.
type Transport interface {
	// Stream opens a streaming request and delivers events via the handler.
	Stream(ctx context.Context, req *types.Request, h StreamHandler) (CancelFunc, error)

	// Call performs a plain request/response exchange.
	Call(ctx context.Context, req *types.Request, result any) error
}

// HTTPTransport speaks the chat protocol over a single HTTP POST endpoint.
type HTTPTransport struct {
	config *Config
	client *http.Client
	log    *logger.Logger
}

// New creates an HTTP transport.
func New(cfg *Config, log *logger.Logger) (*HTTPTransport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.L()
	}

	return &HTTPTransport{
		config: cfg,
		// No client timeout: it would kill long-lived streams. Call applies
		// its own per-request deadline.
		client: &http.Client{},
		log:    log,
	}, nil
}

func (t *HTTPTransport) newRequest(ctx context.Context, req *types.Request, streaming bool) (*http.Request, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", req.Type, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", req.Type, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if streaming {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	for key, value := range t.config.Headers {
		httpReq.Header.Set(key, value)
	}

	return httpReq, nil
}

// Stream opens the streaming POST and reads SSE frames until the server
// closes the stream or the returned cancel func is invoked. Frames are
// delivered strictly in receipt order. A non-2xx response is reported as a
// synthetic error event followed by OnComplete, never as a Go error.
func (t *HTTPTransport) Stream(ctx context.Context, req *types.Request, h StreamHandler) (CancelFunc, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	httpReq, err := t.newRequest(streamCtx, req, true)
	if err != nil {
		cancel()
		return nil, err
	}

	t.log.Debug("opening stream",
		zap.String("type", req.Type),
		zap.String("endpoint", t.config.Endpoint),
	)

	go t.readLoop(streamCtx, httpReq, req.Type, h)

	return CancelFunc(cancel), nil
}

func (t *HTTPTransport) readLoop(ctx context.Context, httpReq *http.Request, reqType string, h StreamHandler) {
	resp, err := t.client.Do(httpReq)
	if err != nil {
		if isCanceled(ctx, err) {
			t.log.Debug("stream aborted", zap.String("type", reqType))
			return
		}
		t.log.Error("stream request failed", zap.String("type", reqType), zap.Error(err))
		if h.OnError != nil {
			h.OnError(err)
		}
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxLineSize))
		t.log.Warn("stream rejected",
			zap.String("type", reqType),
			zap.Int("status", resp.StatusCode),
		)
		if h.OnEvent != nil {
			h.OnEvent(NewHTTPErrorEvent(resp.StatusCode, http.StatusText(resp.StatusCode), t.config.RetryableStatusCodes))
		}
		if h.OnComplete != nil {
			h.OnComplete()
		}
		return
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, dataPrefix) {
			// Comment, event-name and blank lines carry no payload.
			continue
		}

		event, err := types.ParseEvent([]byte(strings.TrimPrefix(line, dataPrefix)))
		if err != nil {
			t.log.Warn("skipping malformed stream event", zap.Error(err))
			continue
		}

		if h.OnEvent != nil {
			h.OnEvent(event)
		}
	}

	if err := scanner.Err(); err != nil {
		if isCanceled(ctx, err) {
			t.log.Debug("stream aborted", zap.String("type", reqType))
			return
		}
		t.log.Error("stream read failed", zap.String("type", reqType), zap.Error(err))
		if h.OnError != nil {
			h.OnError(err)
		}
		return
	}

	t.log.Debug("stream completed", zap.String("type", reqType))
	if h.OnComplete != nil {
		h.OnComplete()
	}
}

// Call performs a non-streaming protocol exchange and decodes the JSON
// response into result when it is non-nil.
func (t *HTTPTransport) Call(ctx context.Context, req *types.Request, result any) error {
	ctx, cancel := context.WithTimeout(ctx, t.config.CallTimeout)
	defer cancel()

	httpReq, err := t.newRequest(ctx, req, false)
	if err != nil {
		return err
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s request: %w", req.Type, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", req.Type, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s failed: status %d: %s", req.Type, resp.StatusCode, truncateBody(body))
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("unmarshal %s response: %w", req.Type, err)
		}
	}

	return nil
}

func isCanceled(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled)
}

func truncateBody(body []byte) string {
	const max = 256
	if len(body) <= max {
		return string(body)
	}
	return string(body[:max]) + "..."
}

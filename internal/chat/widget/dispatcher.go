package widget

import (
	"errors"

	"github.com/lk2023060901/copilot-chat/internal/chat/types"
	"github.com/lk2023060901/copilot-chat/internal/pkg/logger"
	"go.uber.org/zap"
)

// ErrCodeNoActiveThread is reported when a scoped action fires with no
// thread selected.
const ErrCodeNoActiveThread = "NO_ACTIVE_THREAD"

// ErrNoActiveThread is the matching sentinel error.
var ErrNoActiveThread = errors.New("no active thread - cannot send widget action")

// ActionTarget is the store surface the dispatcher needs.
type ActionTarget interface {
	ActiveThreadID() string
	SendWidgetAction(threadID, itemID string, action types.ActionConfig)
}

// ErrorReporter receives dispatch failures. Matches the store's error
// callback shape so both can share a handler.
type ErrorReporter func(message, code string)

// Dispatcher encodes widget interactions into protocol requests. It does
// not interpret action payloads; it applies defaults and passes them
// through to the target thread.
type Dispatcher struct {
	target  ActionTarget
	log     *logger.Logger
	onError ErrorReporter
}

// NewDispatcher creates a dispatcher bound to a store.
func NewDispatcher(target ActionTarget, log *logger.Logger, onError ErrorReporter) *Dispatcher {
	if log == nil {
		log = logger.L()
	}
	return &Dispatcher{target: target, log: log, onError: onError}
}

// Dispatch sends an action against an explicit thread, which need not be
// the selected one. Handler defaults to server, loading behavior to auto.
func (d *Dispatcher) Dispatch(threadID, itemID string, action types.ActionConfig) {
	d.target.SendWidgetAction(threadID, itemID, action.Normalized())
}

// SendFunc dispatches an action against the thread that was active when
// the sender was obtained.
type SendFunc func(itemID string, action types.ActionConfig) error

// Sender returns a send function scoped to the currently active thread.
// Calling it with no active thread reports NO_ACTIVE_THREAD instead of
// panicking.
func (d *Dispatcher) Sender() SendFunc {
	return func(itemID string, action types.ActionConfig) error {
		threadID := d.target.ActiveThreadID()
		if threadID == "" {
			d.log.Error("widget action dropped: no active thread",
				zap.String("item_id", itemID),
				zap.String("action", action.Type),
			)
			if d.onError != nil {
				d.onError(ErrNoActiveThread.Error(), ErrCodeNoActiveThread)
			}
			return ErrNoActiveThread
		}

		d.Dispatch(threadID, itemID, action)
		return nil
	}
}

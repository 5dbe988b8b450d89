package chatd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lk2023060901/copilot-chat/internal/chat/types"
	"github.com/lk2023060901/copilot-chat/internal/pkg/logger"
)

// EmitFunc delivers one stream event to the client. Emission order is
// delivery order.
type EmitFunc func(*types.StreamEvent) error

// Agent produces the assistant side of a turn as a scripted event
// sequence: progress, a visible task, a streamed assistant message and,
// for some intents, a widget.
type Agent struct {
	registry *Registry
	log      *logger.Logger
}

func NewAgent(registry *Registry, log *logger.Logger) *Agent {
	if log == nil {
		log = logger.L()
	}
	return &Agent{registry: registry, log: log}
}

type script struct {
	progress  string
	taskTitle string
	reply     string
	widget    json.RawMessage
	title     string
}

// Respond runs one scripted assistant turn on an existing thread. The
// user message has already been recorded and echoed by the caller.
func (a *Agent) Respond(thread *types.Thread, userText string, emit EmitFunc) error {
	sc := a.scriptFor(userText)
	return a.play(thread, sc, emit)
}

// RespondToAction runs a turn triggered by a widget action instead of a
// typed message.
func (a *Agent) RespondToAction(thread *types.Thread, action types.ActionConfig, emit EmitFunc) error {
	sc := a.scriptForAction(action)
	return a.play(thread, sc, emit)
}

func (a *Agent) play(thread *types.Thread, sc script, emit EmitFunc) error {
	if err := emit(&types.StreamEvent{Type: types.EventProgressUpdate, Text: sc.progress}); err != nil {
		return err
	}

	if sc.taskTitle != "" {
		if err := a.playTask(thread, sc.taskTitle, emit); err != nil {
			return err
		}
	}

	if err := a.playAssistant(thread, sc.reply, emit); err != nil {
		return err
	}

	if sc.widget != nil {
		widgetItem := types.ThreadItem{
			ID:        a.registry.NewID("wid"),
			ThreadID:  thread.ID,
			CreatedAt: time.Now().UTC(),
			Type:      types.ItemTypeWidget,
			Widget:    sc.widget,
		}
		a.registry.AppendItem(thread.ID, widgetItem)
		if err := emit(&types.StreamEvent{Type: types.EventThreadItemDone, Item: &widgetItem}); err != nil {
			return err
		}
	}

	if thread.Title == nil && sc.title != "" {
		a.registry.SetTitle(thread.ID, sc.title)
		updated, err := a.registry.Thread(thread.ID)
		if err == nil {
			if err := emit(&types.StreamEvent{Type: types.EventThreadUpdated, Thread: &updated}); err != nil {
				return err
			}
		}
	}

	endItem := types.ThreadItem{
		ID:        a.registry.NewID("eot"),
		ThreadID:  thread.ID,
		CreatedAt: time.Now().UTC(),
		Type:      types.ItemTypeEndOfTurn,
	}
	a.registry.AppendItem(thread.ID, endItem)
	return emit(&types.StreamEvent{Type: types.EventThreadItemDone, Item: &endItem})
}

// playTask shows a loading task and completes it under the same id, so
// the client replaces it in place.
func (a *Agent) playTask(thread *types.Thread, title string, emit EmitFunc) error {
	taskID := a.registry.NewID("task")
	now := time.Now().UTC()

	loading := types.ThreadItem{
		ID:        taskID,
		ThreadID:  thread.ID,
		CreatedAt: now,
		Type:      types.ItemTypeTask,
		Task: &types.Task{
			Type:            "custom",
			StatusIndicator: types.TaskStatusLoading,
			Title:           &title,
		},
	}
	if err := emit(&types.StreamEvent{Type: types.EventThreadItemAdded, Item: &loading}); err != nil {
		return err
	}

	complete := loading
	complete.Task = &types.Task{
		Type:            "custom",
		StatusIndicator: types.TaskStatusComplete,
		Title:           &title,
	}
	a.registry.AppendItem(thread.ID, complete)
	return emit(&types.StreamEvent{Type: types.EventThreadItemAdded, Item: &complete})
}

// playAssistant streams the reply as text deltas between an added and a
// done event carrying the same item id.
func (a *Agent) playAssistant(thread *types.Thread, reply string, emit EmitFunc) error {
	itemID := a.registry.NewID("msg")
	now := time.Now().UTC()

	added := types.ThreadItem{
		ID:        itemID,
		ThreadID:  thread.ID,
		CreatedAt: now,
		Type:      types.ItemTypeAssistantMessage,
		Content:   []types.AssistantContent{{Type: "output_text", Text: ""}},
	}
	if err := emit(&types.StreamEvent{Type: types.EventThreadItemAdded, Item: &added}); err != nil {
		return err
	}

	for _, delta := range chunkText(reply, 4) {
		ev := &types.StreamEvent{
			Type:   types.EventThreadItemUpdated,
			ItemID: itemID,
			Update: &types.ItemUpdate{Type: types.UpdateTextDelta, Delta: delta},
		}
		if err := emit(ev); err != nil {
			return err
		}
	}

	done := types.ThreadItem{
		ID:        itemID,
		ThreadID:  thread.ID,
		CreatedAt: now,
		Type:      types.ItemTypeAssistantMessage,
		Content:   []types.AssistantContent{{Type: "output_text", Text: reply}},
	}
	a.registry.AppendItem(thread.ID, done)
	return emit(&types.StreamEvent{Type: types.EventThreadItemDone, Item: &done})
}

// chunkText splits text into delta-sized groups of words, keeping the
// original spacing by re-joining with single spaces.
func chunkText(text string, words int) []string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}

	var out []string
	for start := 0; start < len(fields); start += words {
		end := start + words
		if end > len(fields) {
			end = len(fields)
		}
		chunk := strings.Join(fields[start:end], " ")
		if start > 0 {
			chunk = " " + chunk
		}
		out = append(out, chunk)
	}
	return out
}

func (a *Agent) scriptFor(userText string) script {
	lower := strings.ToLower(userText)

	switch {
	case strings.Contains(lower, "balance") || strings.Contains(lower, "account"):
		return script{
			progress:  "Looking up your accounts",
			taskTitle: "Fetching account balances",
			reply:     "Here is an overview of your accounts. Your checking account holds $4,821.17 and your savings account holds $12,350.00. Let me know if you want to move money between them.",
			widget:    balanceWidget(),
			title:     "Account balances",
		}
	case strings.Contains(lower, "transfer") || strings.Contains(lower, "send") || strings.Contains(lower, "pay"):
		return script{
			progress:  "Preparing your transfer",
			taskTitle: "Validating transfer details",
			reply:     "I have prepared the transfer for you. Review the details below and confirm when you are ready.",
			widget:    transferWidget(),
			title:     "Money transfer",
		}
	case strings.Contains(lower, "card"):
		return script{
			progress:  "Checking your cards",
			taskTitle: "Loading card settings",
			reply:     "Your debit card ending in 4421 is active. You can freeze it instantly from here if you misplaced it.",
			widget:    cardWidget(),
			title:     "Card controls",
		}
	default:
		return script{
			progress: "Thinking",
			reply: fmt.Sprintf(
				"I can help you with balances, transfers, and card controls. You asked: %q. Try asking about your account balance to get started.",
				userText,
			),
			title: defaultTitle(userText),
		}
	}
}

func (a *Agent) scriptForAction(action types.ActionConfig) script {
	switch action.Type {
	case "confirm_transfer":
		return script{
			progress:  "Processing the transfer",
			taskTitle: "Executing transfer",
			reply:     "Done. The transfer has been executed and both balances are updated. The reference number is TRX-88412.",
		}
	case "cancel_transfer":
		return script{
			progress: "Cancelling",
			reply:    "No problem, I have discarded that transfer. Nothing was moved.",
		}
	case "freeze_card":
		return script{
			progress:  "Freezing your card",
			taskTitle: "Updating card status",
			reply:     "Your card ending in 4421 is now frozen. No new transactions will go through until you unfreeze it.",
		}
	default:
		return script{
			progress: "Working on it",
			reply:    fmt.Sprintf("I received your %s request and took care of it.", action.Type),
		}
	}
}

// defaultTitle derives a short thread title from the first message.
func defaultTitle(userText string) string {
	fields := strings.Fields(userText)
	if len(fields) == 0 {
		return "New conversation"
	}
	if len(fields) > 6 {
		fields = fields[:6]
	}
	return strings.Join(fields, " ")
}

func balanceWidget() json.RawMessage {
	return mustWidget(map[string]any{
		"type": "Card",
		"children": []any{
			map[string]any{"type": "Title", "value": "Your accounts"},
			map[string]any{"type": "Row", "label": "Checking", "value": "$4,821.17"},
			map[string]any{"type": "Row", "label": "Savings", "value": "$12,350.00"},
		},
	})
}

func transferWidget() json.RawMessage {
	return mustWidget(map[string]any{
		"type": "Card",
		"children": []any{
			map[string]any{"type": "Title", "value": "Confirm transfer"},
			map[string]any{"type": "Row", "label": "From", "value": "Checking"},
			map[string]any{"type": "Row", "label": "To", "value": "Savings"},
			map[string]any{"type": "Row", "label": "Amount", "value": "$500.00"},
			map[string]any{
				"type": "ButtonRow",
				"buttons": []any{
					map[string]any{"label": "Confirm", "action": map[string]any{"type": "confirm_transfer"}},
					map[string]any{"label": "Cancel", "action": map[string]any{"type": "cancel_transfer"}},
				},
			},
		},
	})
}

func cardWidget() json.RawMessage {
	return mustWidget(map[string]any{
		"type": "Card",
		"children": []any{
			map[string]any{"type": "Title", "value": "Debit card •••• 4421"},
			map[string]any{"type": "Row", "label": "Status", "value": "Active"},
			map[string]any{
				"type": "ButtonRow",
				"buttons": []any{
					map[string]any{"label": "Freeze card", "action": map[string]any{"type": "freeze_card"}},
				},
			},
		},
	})
}

func mustWidget(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

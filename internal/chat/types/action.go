package types

// Widget action handlers and loading behaviors.
const (
	ActionHandlerServer = "server"
	ActionHandlerClient = "client"

	LoadingBehaviorAuto   = "auto"
	LoadingBehaviorManual = "manual"
)

// ActionConfig describes a user interaction with a widget (button click,
// form submit, select change). The payload is opaque to the client.
type ActionConfig struct {
	Type            string         `json:"type"`
	Payload         map[string]any `json:"payload,omitempty"`
	Handler         string         `json:"handler,omitempty"`
	LoadingBehavior string         `json:"loadingBehavior,omitempty"`
}

// Normalized returns a copy with defaults applied: payload non-nil,
// handler "server", loading behavior "auto".
func (a ActionConfig) Normalized() ActionConfig {
	if a.Payload == nil {
		a.Payload = map[string]any{}
	}
	if a.Handler == "" {
		a.Handler = ActionHandlerServer
	}
	if a.LoadingBehavior == "" {
		a.LoadingBehavior = LoadingBehaviorAuto
	}
	return a
}

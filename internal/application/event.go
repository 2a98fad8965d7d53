package application

import "spark-assistant/internal/domain"

type State string

const (
	StateIdle         State = "idle"
	StateCapturing    State = "capturing"
	StateTranscribing State = "transcribing"
	StateResponding   State = "responding"
	StateSynthesizing State = "synthesizing"
)

type EventType string

const (
	EventState    EventType = "state"
	EventMessage  EventType = "message"
	EventError    EventType = "error"
	EventAudio    EventType = "audio"
	EventPlayback EventType = "playback"
	EventSettings EventType = "settings"
)

// Event is pushed to observers as the conversation moves through a turn.
type Event struct {
	Type     EventType         `json:"type"`
	TurnID   string            `json:"turn_id,omitempty"`
	State    State             `json:"state,omitempty"`
	Message  *domain.Message   `json:"message,omitempty"`
	Error    string            `json:"error,omitempty"`
	Audio    string            `json:"audio,omitempty"`
	Playing  bool              `json:"playing,omitempty"`
	Settings *domain.Selection `json:"settings,omitempty"`
}

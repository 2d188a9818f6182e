package websocket

import "github.com/stemsi/exstem-quiz/internal/questionusage"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave Action = "autosave"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
)

// RequestEnvelope carries every client message; fields unused by an action are ignored.
type RequestEnvelope struct {
	Action Action `json:"action"`

	// autosave
	Slot     int    `json:"slot,omitempty"`
	Response string `json:"response,omitempty"`

	// submit
	Actions []questionusage.Action `json:"actions,omitempty"`
	Finish  bool                   `json:"finish,omitempty"`
	TimeUp  bool                   `json:"time_up,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError    Event = "error"
	EventSaved    Event = "saved"
	EventState    Event = "state"
	EventTimer    Event = "timer"
	EventFinished Event = "finished"
	EventPong     Event = "pong"
)

type SavedResponse struct {
	Event Event `json:"event"`
	Slot  int   `json:"slot"`
}

// StateResponse reports the attempt after a submission.
type StateResponse struct {
	Event     Event    `json:"event"`
	State     string   `json:"state"`
	SumGrades *float64 `json:"sum_grades,omitempty"`
	TimeLeft  *int64   `json:"time_left,omitempty"`
}

// TimerResponse is pushed periodically while the attempt has a deadline.
type TimerResponse struct {
	Event    Event `json:"event"`
	TimeLeft int64 `json:"time_left"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

// SignalResponse carries only the event name, e.g. pong or finished.
type SignalResponse struct {
	Event Event `json:"event"`
}

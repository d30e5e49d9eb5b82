package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave Action = "autosave"
	ActionMark     Action = "mark"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AutosaveRequest is sent by the portal to save a single answer.
type AutosaveRequest struct {
	Action        Action `json:"action"`
	QuestionID    string `json:"question_id"`
	OptionIndex   *int   `json:"selected_option_index"`
	QuestionIndex int    `json:"question_index"`
}

// MarkRequest toggles the review flag on a question.
type MarkRequest struct {
	Action     Action `json:"action"`
	QuestionID string `json:"question_id"`
	Marked     *bool  `json:"marked"`
}

// SubmitRequest is sent by the portal to finalize the attempt with its
// complete answer map.
type SubmitRequest struct {
	Action  Action         `json:"action"`
	Answers map[string]int `json:"answers"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError     Event = "error"
	EventSaved     Event = "saved"
	EventMarked    Event = "marked"
	EventHeartbeat Event = "heartbeat"
	EventSubmitted Event = "submitted"
	EventPong      Event = "pong"
)

type SavedResponse struct {
	Event       Event  `json:"event"`
	QuestionID  string `json:"question_id"`
	OptionIndex int    `json:"selected_option_index"`
}

type MarkedResponse struct {
	Event      Event  `json:"event"`
	QuestionID string `json:"question_id"`
	Marked     bool   `json:"marked"`
}

// HeartbeatResponse pushes the authoritative countdown. TimeRemaining is in
// seconds; Clock is a pre-formatted display string.
type HeartbeatResponse struct {
	Event            Event   `json:"event"`
	TimeRemaining    float64 `json:"time_remaining"`
	Clock            string  `json:"clock"`
	AnsweredCount    int     `json:"answered_count"`
	ShouldAutoSubmit bool    `json:"should_auto_submit"`
}

type SubmittedResponse struct {
	Event         Event   `json:"event"`
	SubmissionID  string  `json:"submission_id"`
	Score         float64 `json:"score"`
	AutoSubmitted bool    `json:"auto_submitted"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}

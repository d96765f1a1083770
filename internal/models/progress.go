package models

// Literal status and error strings understood by the browser client.
const (
	StatusTranscribing = "Transcribing audio..."
	StatusSummarizing  = "Transcription complete. Summarizing..."
	StatusDone         = "Done"

	ErrMsgTranscribe = "Failed to transcribe audio."
	ErrMsgSummarize  = "Failed to generate summary."
	ErrMsgCancelled  = "Processing cancelled."
)

// ProgressEvent is one frame of the progress stream. Empty fields are
// omitted so each frame carries only the fields of its phase.
type ProgressEvent struct {
	Status     string `json:"status,omitempty"`
	Percent    int    `json:"percent,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	Summary    string `json:"summary,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Terminal reports whether the event closes the stream.
func (e ProgressEvent) Terminal() bool {
	return e.Error != "" || e.Status == StatusDone
}

func TranscribingEvent() ProgressEvent {
	return ProgressEvent{Status: StatusTranscribing, Percent: 25}
}

func SummarizingEvent() ProgressEvent {
	return ProgressEvent{Status: StatusSummarizing, Percent: 60}
}

func DoneEvent(transcript, summary string) ProgressEvent {
	return ProgressEvent{Status: StatusDone, Percent: 100, Transcript: transcript, Summary: summary}
}

func ErrorEvent(msg string) ProgressEvent {
	return ProgressEvent{Error: msg}
}

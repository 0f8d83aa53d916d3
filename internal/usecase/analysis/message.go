package analysis

// Message statuses and stages. The stage names are wire values understood by
// existing clients and keep their historical spelling.
const (
	StatusRunning   = "RUNNING"
	StatusStreaming = "STREAMING_RESPONSE"
	StatusError     = "error"
	StatusCompleted = "completed"

	StageFiltering = "STACKTRACE_FILTERING"
	StageFiltered  = "STACKTRACE_FILTRED"
	StageAnalysing = "ANAYLSIS_RUNNING"
)

// Message is one event of an analysis stream.
type Message struct {
	Status  string `json:"status"`
	Stage   string `json:"stage,omitempty"`
	Message string `json:"message,omitempty"`
}

// Completed is the message that ends every stream, successful or not.
func Completed() Message {
	return Message{Status: StatusCompleted}
}

func running(stage, msg string) Message {
	return Message{Status: StatusRunning, Stage: stage, Message: msg}
}

func token(tok string) Message {
	return Message{Status: StatusStreaming, Stage: StageAnalysing, Message: tok}
}

package bus

// Agent event topics.
const (
	TopicAgentStatusChanged = "agent.status_changed"
)

// Message event topics.
const (
	TopicMessageSent = "message.sent"
)

// Task event topics.
const (
	TopicTaskCreated   = "task.created"
	TopicTaskCompleted = "task.completed"
	TopicTaskFailed    = "task.failed"
)

// Job event topics.
const (
	TopicJobRunCompleted = "job.run_completed"
	TopicJobRunFailed    = "job.run_failed"
)

// AgentStatusChangedEvent is published when an agent's derived status changes.
type AgentStatusChangedEvent struct {
	Agent     string // agent identity
	OldStatus string // previous status (e.g. idle)
	NewStatus string // new status (e.g. processing)
}

// MessageSentEvent is published for every message appended to the log.
type MessageSentEvent struct {
	MessageID string // message ID
	From      string // sender identity
	To        string // recipient identity (may be the coordinator)
	AutoReply bool   // true for synthesized replies
}

// TaskEvent is published when a task is created or reaches a terminal state.
type TaskEvent struct {
	TaskID   string // task ID
	Agent    string // owning agent identity
	Title    string // task title
	Priority string // task priority
}

// JobRunEvent is published after every job run, successful or not.
type JobRunEvent struct {
	JobID          string  // job ID
	Name           string  // job name
	Type           string  // job type
	Target         string  // analyzed target, if any
	Err            string  // failure message (run_failed only)
	ResponseTimeMS float64 // measured run duration in milliseconds
}

package lifecycle

// Event kinds, one per observable transition.
const (
	EventTaskCompleted      = "task_completed"
	EventTaskApproved       = "task_approved"
	EventTaskRejected       = "task_rejected"
	EventRewardRequested    = "reward_requested"
	EventRewardApproved     = "reward_approved"
	EventRewardRejected     = "reward_rejected"
	EventRewardAutoApproved = "reward_auto_approved"
)

// Event describes a committed lifecycle transition. Events are emitted
// strictly after the transaction that produced them commits, so a consumer
// never learns about a transition that failed to persist.
type Event struct {
	Kind     string
	FamilyID int64
	ChildID  int64

	// Task transitions.
	TaskID       int64
	CompletionID int64
	TaskTitle    string
	Occurrence   string

	// Reward transitions.
	RewardID    int64
	RequestID   int64
	RewardTitle string

	Stars        int
	StarType     string
	BalanceAfter int
	Reason       string
}

// Sink consumes committed transition events. Delivery is best-effort; sink
// failures never affect the transition itself.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

package ordo

// StageState is the state of a stage during a run.
type StageState uint32

const (
	// StageStatePending is the state of a stage not yet running.
	StageStatePending StageState = iota
	// StageStateWaitingForInput is the state of a stage blocked on a receive.
	StageStateWaitingForInput
	// StageStateProcessing is the state of a stage working on a fragment.
	StageStateProcessing
	// StageStateEmitting is the state of a stage sending a fragment.
	StageStateEmitting
	// StageStateClosingOutputs is the state of a stage whose inputs are exhausted.
	StageStateClosingOutputs
	// StageStateTerminated is the final state of every stage.
	StageStateTerminated
)

func (s StageState) String() string {
	switch s {
	case StageStatePending:
		return "pending"
	case StageStateWaitingForInput:
		return "waiting-for-input"
	case StageStateProcessing:
		return "processing"
	case StageStateEmitting:
		return "emitting"
	case StageStateClosingOutputs:
		return "closing-outputs"
	case StageStateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

package pipeline

import "fmt"

// Stage names one step of a run.
type Stage string

const (
	StageConfig       Stage = "config"
	StageFetch        Stage = "fetch"
	StageProcess      Stage = "process"
	StageWriteRaw     Stage = "write-raw"
	StageWriteSummary Stage = "write-summary"
)

// State is the position of a run in
// Start -> ConfigResolved -> Fetched -> Processed -> RawWritten -> SummaryWritten -> Done.
type State int

const (
	StateStart State = iota
	StateConfigResolved
	StateFetched
	StateProcessed
	StateRawWritten
	StateSummaryWritten
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateStart:          "start",
	StateConfigResolved: "config-resolved",
	StateFetched:        "fetched",
	StateProcessed:      "processed",
	StateRawWritten:     "raw-written",
	StateSummaryWritten: "summary-written",
	StateDone:           "done",
	StateFailed:         "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// next is the state reached when stage succeeds.
func (s Stage) next() State {
	switch s {
	case StageConfig:
		return StateConfigResolved
	case StageFetch:
		return StateFetched
	case StageProcess:
		return StateProcessed
	case StageWriteRaw:
		return StateRawWritten
	case StageWriteSummary:
		return StateSummaryWritten
	}
	return StateFailed
}

// StageError is the terminal failure of a run.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ExitCode maps a run result onto a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}

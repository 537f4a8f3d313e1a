package session

type State int

const (
	StateParsingMetadata State = iota
	StateResolvingConfig
	StateAssemblingPipeline
	StateActive
	StateEnding
	StateTerminated
	// StateAborted ends a session before assembly began. No end notification
	// is owed for it.
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateParsingMetadata:
		return "PARSING_METADATA"
	case StateResolvingConfig:
		return "RESOLVING_CONFIG"
	case StateAssemblingPipeline:
		return "ASSEMBLING_PIPELINE"
	case StateActive:
		return "ACTIVE"
	case StateEnding:
		return "ENDING"
	case StateTerminated:
		return "TERMINATED"
	case StateAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

func (s State) IsFinal() bool {
	return s == StateTerminated || s == StateAborted
}

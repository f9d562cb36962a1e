package outcome

// Category is where the sorter files a tested input.
type Category string

const (
	Passed   Category = "Passed"
	Failed   Category = "Failed"
	Timedout Category = "Timedout"
)

// Action is the sorter's decision for a single record.
type Action int

const (
	ActionMove Action = iota
	ActionSkip
	ActionStop
)

func (a Action) String() string {
	switch a {
	case ActionMove:
		return "move"
	case ActionSkip:
		return "skip"
	case ActionStop:
		return "stop"
	default:
		return "unknown"
	}
}

// DefaultPassCodes are the bouncer codes treated as a successful import:
// OK, scene loaded with missing textures, scene loaded with missing nodes.
var DefaultPassCodes = []int{CodeOK, CodeLoadSceneMissingTexture, CodeLoadSceneMissingNodes}

// Classifier maps outcomes onto sorter actions and categories.
type Classifier struct {
	pass map[int]bool
}

// NewClassifier builds a classifier for the given pass codes. An empty list
// falls back to DefaultPassCodes.
func NewClassifier(passCodes []int) *Classifier {
	if len(passCodes) == 0 {
		passCodes = DefaultPassCodes
	}
	pass := make(map[int]bool, len(passCodes))
	for _, c := range passCodes {
		pass[c] = true
	}
	return &Classifier{pass: pass}
}

// Classify returns the action for o and, for ActionMove, the destination category.
func (c *Classifier) Classify(o Outcome) (Action, Category) {
	switch o.Kind() {
	case KindNotRan:
		return ActionStop, ""
	case KindDuplicate:
		return ActionSkip, ""
	case KindTimedOut:
		return ActionMove, Timedout
	}
	code, _ := o.ExitCode()
	if c.pass[code] {
		return ActionMove, Passed
	}
	return ActionMove, Failed
}

// IsPass reports whether o is an integer outcome in the pass set.
func (c *Classifier) IsPass(o Outcome) bool {
	code, ok := o.ExitCode()
	return ok && c.pass[code]
}

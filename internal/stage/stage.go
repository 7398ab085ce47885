package stage

// Stage identifies one of the six fixed conversation phases. The order is
// fixed and forward-only; the only backward transitions are the confirmation
// corrections handled by the router.
type Stage string

const (
	Greeting       Stage = "greeting"
	Intent         Stage = "intent"
	DataCollection Stage = "data_collection"
	SlotProposal   Stage = "slot_proposal"
	Confirmation   Stage = "confirmation"
	Closing        Stage = "closing"
)

var stageOrder = []Stage{
	Greeting,
	Intent,
	DataCollection,
	SlotProposal,
	Confirmation,
	Closing,
}

// All returns the stages in conversation order.
func All() []Stage {
	out := make([]Stage, len(stageOrder))
	copy(out, stageOrder)
	return out
}

// Valid reports whether s is one of the six known stages.
func (s Stage) Valid() bool {
	for _, st := range stageOrder {
		if s == st {
			return true
		}
	}
	return false
}

// Terminal reports whether the stage ends the appointment cycle.
func (s Stage) Terminal() bool {
	return s == Closing
}

// next returns the stage that follows s in the fixed order. Closing is
// terminal and returns itself.
func (s Stage) next() Stage {
	for i, st := range stageOrder[:len(stageOrder)-1] {
		if s == st {
			return stageOrder[i+1]
		}
	}
	return Closing
}

package models

// Classification tags the outcome of slot selection
type Classification string

const (
	ClassificationNone     Classification = "none"
	ClassificationExpired  Classification = "expired"  // departed within the look-back window
	ClassificationUpcoming Classification = "upcoming" // departs within the look-ahead window
)

// SelectionDecision is the derived result of one selection call.
// Route and Slot are nil when Classification is none.
type SelectionDecision struct {
	Classification Classification `json:"classification"`
	Route          *Route         `json:"route,omitempty"`
	Slot           *Slot          `json:"slot,omitempty"`
	OffsetMinutes  float64        `json:"offset_minutes"`
}

// Found reports whether a slot was chosen
func (d SelectionDecision) Found() bool {
	return d.Classification != ClassificationNone && d.Slot != nil
}

// NoSelection is the empty decision
func NoSelection() SelectionDecision {
	return SelectionDecision{Classification: ClassificationNone}
}

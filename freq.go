package softsd

// DefaultFrequency is the bus rate a mount tries first. InitFrequency is
// the rate every card initialization sequence runs at, regardless of the
// ladder position.
const (
	DefaultFrequency = 4000000
	InitFrequency    = 400000
)

// freqLadder holds the fallback rates in decreasing order. 400 kHz is the
// floor; every card has to work there.
var freqLadder = [...]uint32{4000000, 1000000, 400000}

// Ladder tracks the active bus clock rate. Its position survives unmount
// on purpose: the point is to converge on a rate that works across
// repeated failures, so only ResetToDefault moves it back up.
type Ladder struct {
	current uint32
}

func NewLadder() *Ladder {
	return &Ladder{current: DefaultFrequency}
}

func (l *Ladder) Current() uint32 {
	return l.current
}

// StepDown moves to the next lower ladder rate. It reports false, and
// changes nothing, when the ladder is already at its floor.
func (l *Ladder) StepDown() bool {
	for _, f := range freqLadder {
		if f < l.current {
			l.current = f
			return true
		}
	}
	return false
}

func (l *Ladder) ResetToDefault() {
	l.current = DefaultFrequency
}

// Set pins the ladder to an explicit caller-chosen rate.
func (l *Ladder) Set(hz uint32) {
	l.current = hz
}

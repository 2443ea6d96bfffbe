package softsd

// Every wait in the stack is a busy poll with a fixed iteration ceiling,
// there is no wall clock anywhere. The ceilings were tuned on hardware:
// tight where the card answers within a few bytes, loose where the card is
// allowed to be genuinely busy.
const (
	pollReady     = 200   // bus release before a command
	pollResponse  = 10    // R1 after a command frame
	pollIdle      = 100   // reset attempts until the card reports idle
	pollOpCond    = 1000  // operation-condition attempts until non-idle
	pollReadToken = 10000 // start-of-data token after a read command
	pollWriteBusy = 50000 // busy bytes after a write
)

// boundedPoll runs step up to limit times and reports whether it ever
// returned true.
func boundedPoll(limit int, step func() bool) bool {
	for i := 0; i < limit; i++ {
		if step() {
			return true
		}
	}
	return false
}

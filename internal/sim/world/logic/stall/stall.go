package stall

// Age is the number of ticks since a record was written. A record stamped
// in the future (clock rewind after a reset) counts as fresh.
func Age(nowTick, recordTick uint64) uint64 {
	if recordTick >= nowTick {
		return 0
	}
	return nowTick - recordTick
}

// Stalled reports whether an agent that has not moved since recordTick has
// exceeded its tolerance. The comparison is strict: an agent is only
// stalled after more than stuckLimit ticks without progress.
func Stalled(nowTick, recordTick, stuckLimit uint64) bool {
	return Age(nowTick, recordTick) > stuckLimit
}

// InGrace reports whether a stalled blocker is still inside its own
// self-resolution window and must not be pre-empted by a swap.
func InGrace(nowTick, recordTick, stuckLimit, swapDelay uint64) bool {
	age := Age(nowTick, recordTick)
	return age > stuckLimit && age <= swapDelay
}

package sortition

// Calendar holds the reward-cycle constants pinned per network (§4.7).
type Calendar struct {
	CycleLength   uint64
	PrepareLength uint64
}

// CurrentCycle returns current_cycle(h) = h / CYCLE_LENGTH.
func (c Calendar) CurrentCycle(height uint64) uint64 {
	return height / c.CycleLength
}

// IsPreparePhase returns is_prepare(h) = (h mod CYCLE_LENGTH) >=
// (CYCLE_LENGTH - PREPARE_LENGTH).
func (c Calendar) IsPreparePhase(height uint64) bool {
	if c.CycleLength == 0 {
		return false
	}
	position := height % c.CycleLength
	return position >= c.CycleLength-c.PrepareLength
}

// UnlockHeight returns the height at which a StackLock accepted at height h
// with num_cycles = k fully unlocks: first_cycle = current_cycle(h) + 1;
// unlock_height = (first_cycle + k) * CYCLE_LENGTH.
func (c Calendar) UnlockHeight(h uint64, numCycles uint8) uint64 {
	firstCycle := c.CurrentCycle(h) + 1
	return (firstCycle + uint64(numCycles)) * c.CycleLength
}

// FirstCycle returns the first reward cycle a StackLock accepted at height
// h participates in.
func (c Calendar) FirstCycle(h uint64) uint64 {
	return c.CurrentCycle(h) + 1
}

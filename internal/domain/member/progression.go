package member

// GrantStripe is the single state transition of the belt progression. It is a
// total function with no failure mode:
//
//   - below MaxStripes the stripe count increments;
//   - at MaxStripes on a non-terminal belt the member advances to the next
//     belt with zero stripes;
//   - at MaxStripes on the terminal belt, or on a belt that is not part of
//     the ladder, the input is returned unchanged. Being stuck at max stripes
//     on a black belt is intended behavior, not an error.
func GrantStripe(belt Belt, stripes int) (Belt, int) {
	if stripes < MaxStripes {
		return belt, stripes + 1
	}

	idx := belt.inSequence()
	if idx < 0 || idx == len(beltSequence)-1 {
		return belt, stripes
	}

	return beltSequence[idx+1], 0
}

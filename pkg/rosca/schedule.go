package rosca

// Round is one precomputed entry of the claim schedule.
type Round struct {
	Number    uint32      `json:"number"`
	Recipient AccountID   `json:"recipient"`
	Expected  []AccountID `json:"expected"`
	Cutoff    Moment      `json:"cutoff"`
}

// BuildSchedule derives the claim schedule from the pre-rotation order.
// Recipients are taken from the end of the order backwards, matching the
// select-last-then-rotate rule, and round i is due at firstPayBy plus
// (i-1) frequencies. The schedule is informational; the engine never reads it.
func BuildSchedule(order []AccountID, firstPayBy, frequency Moment) ([]Round, error) {
	rounds := make([]Round, 0, len(order))
	cutoff := firstPayBy
	for i := range order {
		recipient := order[len(order)-1-i]
		expected := make([]AccountID, 0, len(order)-1)
		for _, a := range order {
			if a != recipient {
				expected = append(expected, a)
			}
		}
		rounds = append(rounds, Round{
			Number:    uint32(i + 1),
			Recipient: recipient,
			Expected:  expected,
			Cutoff:    cutoff,
		})
		if i < len(order)-1 {
			var err error
			if cutoff, err = addMoment(cutoff, frequency); err != nil {
				return nil, err
			}
		}
	}
	return rounds, nil
}

package llm

// perMessageOverhead approximates the per-message framing tokens most chat
// formats charge on top of the content itself.
const perMessageOverhead = 4

// TrimToBudget drops the oldest messages until the history fits inside the
// token budget. System messages at the head of the slice are always kept;
// the most recent message is kept even if it alone exceeds the budget, so
// the model always sees the turn it is being asked to answer.
func TrimToBudget(history []Message, budget int) []Message {
	if budget <= 0 || len(history) == 0 {
		return history
	}

	// Separate the leading system prompt(s) from the rolling window.
	head := 0
	for head < len(history) && history[head].Role == "system" {
		head++
	}
	system := history[:head]
	rolling := history[head:]
	if len(rolling) == 0 {
		return history
	}

	systemCost := 0
	for _, m := range system {
		systemCost += EstimateTokensSimple(m.Content) + perMessageOverhead
	}

	// Walk backwards from the newest message, keeping as many as fit.
	remaining := budget - systemCost
	keepFrom := len(rolling)
	for i := len(rolling) - 1; i >= 0; i-- {
		cost := EstimateTokensSimple(rolling[i].Content) + perMessageOverhead
		if remaining-cost < 0 {
			break
		}
		remaining -= cost
		keepFrom = i
	}

	// Never drop the newest message.
	if keepFrom == len(rolling) {
		keepFrom = len(rolling) - 1
	}

	if head == 0 && keepFrom == 0 {
		return history
	}

	out := make([]Message, 0, head+len(rolling)-keepFrom)
	out = append(out, system...)
	out = append(out, rolling[keepFrom:]...)
	return out
}

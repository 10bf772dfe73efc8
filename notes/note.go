package notes

import "time"

// AIResult is the output of the last successful generation. Both fields are
// always set together.
type AIResult struct {
	PromptType string
	Response   string
}

// AIFailure records the last failed generation attempt. It never replaces an
// existing AIResult.
type AIFailure struct {
	PromptType string
	Message    string
	At         time.Time
}

type Note struct {
	ID        string
	Content   string
	CreatedAt time.Time
	AI        *AIResult
	AIFailure *AIFailure
}

// Processed reports whether the note carries an AI result.
func (n Note) Processed() bool { return n.AI != nil }

func (n Note) clone() Note {
	c := n
	if n.AI != nil {
		ai := *n.AI
		c.AI = &ai
	}
	if n.AIFailure != nil {
		f := *n.AIFailure
		c.AIFailure = &f
	}
	return c
}

func cloneAll(in []Note) []Note {
	out := make([]Note, len(in))
	for i, n := range in {
		out[i] = n.clone()
	}
	return out
}

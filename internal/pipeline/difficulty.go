package pipeline

import "github.com/gridshorts/pipeline/internal/model"

// DifficultyCycler hands out the difficulty for each item. With an
// explicit difficulty it returns that value on every call; otherwise it
// cycles deterministically through 1..10, offset by how many items this
// process has already produced so consecutive batches keep varying.
type DifficultyCycler struct {
	explicit int
	next     int
}

// NewDifficultyCycler builds a cycler. explicit=0 means cycle; produced
// seeds the cycle position.
func NewDifficultyCycler(explicit, produced int) *DifficultyCycler {
	return &DifficultyCycler{
		explicit: explicit,
		next:     produced,
	}
}

// Next returns the difficulty for the next item.
func (c *DifficultyCycler) Next() int {
	if c.explicit != 0 {
		return c.explicit
	}
	span := model.MaxDifficulty - model.MinDifficulty + 1
	d := model.MinDifficulty + c.next%span
	c.next++
	return d
}

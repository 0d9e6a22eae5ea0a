package engine

// PullProgress reports download progress for a model pull operation.
type PullProgress struct {
	Status    string
	Total     int64
	Completed int64
}

// Percent returns the completed share of the current download step. ok is
// false for steps that report no size.
func (p PullProgress) Percent() (pct float64, ok bool) {
	if p.Total <= 0 {
		return 0, false
	}
	return float64(p.Completed) / float64(p.Total) * 100, true
}

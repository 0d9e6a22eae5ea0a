package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// EnsureReady checks that the engine is reachable and has model, pulling it
// when missing. Progress lines go to w; repeated lines are dropped and
// percentages are reported in steps of ten.
func EnsureReady(ctx context.Context, e Engine, model string, w io.Writer) error {
	if model == "" {
		return errors.New("no embedding model configured")
	}
	if !e.IsRunning(ctx) {
		return errors.New("embedding engine is not reachable; start it or choose another embedding.provider")
	}

	if e.HasModel(ctx, model) {
		fmt.Fprintf(w, "model %s: ready\n", model)
		return nil
	}

	fmt.Fprintf(w, "model %s: pulling\n", model)
	var last string
	err := e.PullModel(ctx, model, func(p PullProgress) {
		line := p.Status
		if pct, ok := p.Percent(); ok {
			line = fmt.Sprintf("%s %d%%", p.Status, int(pct)/10*10)
		}
		if line != last {
			fmt.Fprintf(w, "  %s\n", line)
			last = line
		}
	})
	if err != nil {
		return fmt.Errorf("pulling model %s: %w", model, err)
	}
	fmt.Fprintf(w, "model %s: ready\n", model)
	return nil
}

package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/samuelfneumann/rlrunner/experiment/checkpointer"
)

// Save saves the state of a to store after the given training
// iteration of the run runID
func Save(ctx context.Context, store checkpointer.Store, a Agent, runID string,
	iteration int) (checkpointer.Handle, error) {
	meta := a.Signature().Meta()
	meta.RunID = runID
	meta.Iteration = iteration
	meta.Created = time.Now()

	h, err := store.Save(ctx, a, meta)
	if err != nil {
		return "", fmt.Errorf("save: %w", err)
	}
	return h, nil
}

// Restore restores the state of a from the checkpoint h in store. The
// checkpoint must have been saved from an agent with the same
// Signature.
func Restore(ctx context.Context, store checkpointer.Store, a Agent,
	h checkpointer.Handle) error {
	if err := store.Restore(ctx, a, h, a.Signature().Meta()); err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	return nil
}

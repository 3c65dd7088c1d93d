package relay

import (
	"context"
)

// Replay pops backlog items and runs each as a turn, oldest first. Index 0
// replays every item, otherwise only the item at that 1-based index.
// Items not reached because ctx was cancelled go back to the backlog.
func (o *Orchestrator) Replay(ctx context.Context, index int) ([]Outcome, error) {
	prompts, err := o.ops.PopBacklog(index)
	if err != nil {
		return nil, err
	}

	outcomes := make([]Outcome, 0, len(prompts))
	for i, prompt := range prompts {
		if ctx.Err() != nil {
			o.requeue(prompts[i:])
			return outcomes, ctx.Err()
		}
		out, err := o.Handle(ctx, Turn{Text: prompt, Source: SourceReplay})
		if err != nil {
			o.logger.Warn("relay: replayed turn failed", "error", err)
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}

func (o *Orchestrator) requeue(prompts []string) {
	for _, p := range prompts {
		if _, err := o.ops.saveToBacklog(p); err != nil {
			o.logger.Error("relay: could not requeue backlog item", "error", err)
		}
	}
}

package orchestrator

import (
	"context"

	"github.com/questforge/questgraph/internal/quest"
)

// RunResult is a copy of a run's observable outcome.
type RunResult struct {
	SessionID string                    `json:"sessionId"`
	State     RunState                  `json:"state"`
	Trace     []TraceEntry              `json:"trace"`
	Player    PlayerState               `json:"player"`
	Outputs   map[string]map[string]any `json:"outputs,omitempty"`
	Error     string                    `json:"error,omitempty"`
}

// Result returns the outcome of the current or most recent run. Outputs
// holds the synthesized output of every executed task, dialogue and reward
// node, keyed by node id.
func (r *Runtime) Result() RunResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result()
}

func (r *Runtime) result() RunResult {
	res := RunResult{
		SessionID: r.sessionID,
		State:     r.state,
		Trace:     cloneTrace(r.trace),
		Player:    r.player.Clone(),
		Error:     r.failure,
	}
	for id, out := range r.outputs {
		n, ok := r.graph.Node(id)
		if !ok {
			continue
		}
		if _, ok := n.Data.(quest.OutputSynthesizer); !ok {
			continue
		}
		if res.Outputs == nil {
			res.Outputs = make(map[string]map[string]any)
		}
		res.Outputs[id] = quest.CloneMap(out)
	}
	return res
}

// Simulate starts a run over g and waits for it to finish. If ctx is done
// first, the run is cancelled and ctx's error returned with the partial
// result.
func (r *Runtime) Simulate(ctx context.Context, g quest.Graph) (RunResult, error) {
	final, err := r.StartRun(g)
	if err != nil {
		return RunResult{}, err
	}
	select {
	case res := <-final:
		return res, nil
	case <-ctx.Done():
		// A run that finished meanwhile has already sent its result.
		r.Cancel()
		return <-final, ctx.Err()
	}
}

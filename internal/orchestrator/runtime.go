package orchestrator

import (
	"fmt"
	"log"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/questforge/questgraph/internal/condition"
	"github.com/questforge/questgraph/internal/events"
	"github.com/questforge/questgraph/internal/graph"
	"github.com/questforge/questgraph/internal/quest"
)

const (
	DefaultMaxSteps       = 1000
	DefaultTaskExperience = 50
	DefaultLevelThreshold = 100
	DefaultGameVersion    = "1.0.0"
)

// Options configures a Runtime. Zero values select the defaults. Seed drives
// the display-only random fields; zero seeds from the clock.
type Options struct {
	StepDelay      time.Duration
	MaxSteps       int
	TaskExperience int
	LevelThreshold int
	GameVersion    string
	Seed           int64

	Scheduler     Scheduler
	Clock         func() time.Time
	Evaluator     *condition.Evaluator
	InitialPlayer *PlayerState
}

func (o Options) withDefaults() Options {
	if o.MaxSteps <= 0 {
		o.MaxSteps = DefaultMaxSteps
	}
	if o.TaskExperience <= 0 {
		o.TaskExperience = DefaultTaskExperience
	}
	if o.LevelThreshold <= 0 {
		o.LevelThreshold = DefaultLevelThreshold
	}
	if o.GameVersion == "" {
		o.GameVersion = DefaultGameVersion
	}
	if o.Scheduler == nil {
		o.Scheduler = TimerScheduler{}
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Evaluator == nil {
		o.Evaluator = condition.NewEvaluator(0)
	}
	return o
}

// Runtime walks a quest graph one node at a time against a simulated player.
// Each step schedules the next; a generation counter invalidates
// continuations that belong to a cancelled or replaced run.
type Runtime struct {
	opts Options
	rng  *rand.Rand

	mu        sync.Mutex
	state     RunState
	gen       uint64
	runs      uint64
	sessionID string
	graph     quest.Graph
	player    PlayerState
	trace     []TraceEntry
	outputs   map[string]map[string]any
	steps     int
	failure   string
	pending   Handle
	done      chan struct{}
	// receives this run's terminal result exactly once
	final chan RunResult
}

// NewRuntime creates an idle runtime.
func NewRuntime(opts Options) *Runtime {
	opts = opts.withDefaults()
	seed := uint64(opts.Seed)
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	done := make(chan struct{})
	close(done)
	return &Runtime{
		opts:   opts,
		rng:    rand.New(rand.NewPCG(seed, seed)),
		state:  RunStateIdle,
		player: NewPlayerState(),
		done:   done,
	}
}

// Start begins a run over a snapshot of g. The graph must have exactly one
// start node; otherwise the runtime stays as it was.
func (r *Runtime) Start(g quest.Graph) error {
	_, err := r.StartRun(g)
	return err
}

// StartRun is Start returning a channel that receives the run's terminal
// result once it completes, fails or is cancelled. The result belongs to
// this run even if a later run has started by the time it is read.
func (r *Runtime) StartRun(g quest.Graph) (<-chan RunResult, error) {
	starts := g.NodesOfKind(quest.KindStart)
	switch len(starts) {
	case 0:
		return nil, ErrMissingStartNode
	case 1:
	default:
		return nil, fmt.Errorf("%w: found %d", ErrMultipleStartNodes, len(starts))
	}

	snap := g.Clone()
	healed := graph.Validate(snap.Nodes, snap.Edges)
	if len(healed.DroppedEdgeIDs) > 0 {
		log.Printf("orchestrator: ignoring %d dangling edge(s): %v", len(healed.DroppedEdgeIDs), healed.DroppedEdgeIDs)
	}
	snap.Edges = healed.HealedEdges

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == RunStateRunning {
		return nil, ErrRunActive
	}

	r.gen++
	r.runs++
	r.sessionID = fmt.Sprintf("sim-%d", r.runs)
	r.graph = snap
	r.player = NewPlayerState()
	if r.opts.InitialPlayer != nil {
		r.player = r.opts.InitialPlayer.Clone()
	}
	r.trace = nil
	r.outputs = make(map[string]map[string]any)
	r.steps = 0
	r.failure = ""
	r.state = RunStateRunning
	r.done = make(chan struct{})
	r.final = make(chan RunResult, 1)

	start := starts[0]
	gameVersion := r.opts.GameVersion
	if d, ok := start.Data.(*quest.StartData); ok && d.GameVersion != "" {
		gameVersion = d.GameVersion
	}
	marker := map[string]any{
		"gameVersion": gameVersion,
		"startedAt":   r.opts.Clock().UTC().Format(time.RFC3339Nano),
		"sessionId":   r.sessionID,
	}

	r.emitEvent("info", "run.started", map[string]interface{}{
		"start_node": start.ID,
		"nodes":      len(snap.Nodes),
	})
	r.schedule(r.gen, start.ID, marker)
	return r.final, nil
}

// Cancel stops the active run and returns the runtime to idle. The trace
// recorded so far is kept. It reports whether a run was cancelled.
func (r *Runtime) Cancel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != RunStateRunning {
		return false
	}
	r.gen++
	if r.pending != nil {
		r.pending.Stop()
		r.pending = nil
	}
	r.state = RunStateIdle
	r.emitEvent("info", "run.cancelled", map[string]interface{}{"steps": r.steps})
	r.finish()
	return true
}

// Reset cancels any active run and discards its trace and player state.
func (r *Runtime) Reset() {
	r.Cancel()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = RunStateIdle
	r.trace = nil
	r.outputs = nil
	r.player = NewPlayerState()
	r.failure = ""
	r.steps = 0
}

// schedule queues the step for nodeID. Caller holds r.mu.
func (r *Runtime) schedule(gen uint64, nodeID string, input map[string]any) {
	r.pending = r.opts.Scheduler.Schedule(r.opts.StepDelay, func() {
		r.step(gen, nodeID, input)
	})
}

func (r *Runtime) step(gen uint64, nodeID string, input map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if gen != r.gen || r.state != RunStateRunning {
		return
	}
	r.pending = nil

	n, ok := r.graph.Node(nodeID)
	if !ok {
		r.fail(TraceEntry{
			NodeID:    nodeID,
			Status:    StatusError,
			Message:   "node not found in graph snapshot",
			ErrorKind: StructuralError,
		})
		return
	}
	if r.steps >= r.opts.MaxSteps {
		entry := entryFor(n, StatusError, fmt.Sprintf("step limit of %d exceeded", r.opts.MaxSteps), nil)
		entry.ErrorKind = StepLimitExceeded
		r.fail(entry)
		return
	}
	r.steps++
	r.emitEvent("info", "node.started", map[string]interface{}{
		"node_id": n.ID,
		"kind":    string(n.Kind),
	})

	if n.Data == nil {
		n.Data = quest.NewData(n.Kind)
	}
	if d, ok := n.Data.(*quest.ConditionData); ok {
		r.stepCondition(gen, n, d, input)
		return
	}

	entry, next := r.execute(n, input)
	r.record(entry)

	if n.Kind == quest.KindEnd {
		r.complete()
		return
	}
	out := r.graph.Outgoing(n.ID)
	if len(out) == 0 {
		r.record(TraceEntry{
			NodeID:   n.ID,
			NodeKind: n.Kind,
			Label:    n.Label(),
			Status:   StatusSuccess,
			Message:  FlowEnded,
		})
		r.complete()
		return
	}
	r.schedule(gen, out[0].Target, next)
}

// execute runs a non-condition node and returns its entry and the input for
// the next node.
func (r *Runtime) execute(n quest.Node, input map[string]any) (TraceEntry, map[string]any) {
	var (
		out map[string]any
		msg string
	)
	switch d := n.Data.(type) {
	case *quest.TaskData:
		out, msg = r.runTask(n, d)
	case *quest.RewardData:
		out, msg = r.runReward(n, d)
	case *quest.DialogueData:
		out, msg = runDialogue(d)
	case *quest.EndData:
		return entryFor(n, StatusSuccess, FlowEnded, input), input
	case *quest.StartData:
		r.outputs[n.ID] = input
		return entryFor(n, StatusSuccess, "quest started", input), input
	default:
		return entryFor(n, StatusSuccess, fmt.Sprintf("%s node passed through", n.Kind), input), input
	}
	r.outputs[n.ID] = out
	return entryFor(n, StatusSuccess, msg, out), out
}

func (r *Runtime) stepCondition(gen uint64, n quest.Node, d *quest.ConditionData, input map[string]any) {
	expr, evalInput, err := r.resolveExpression(d, input)

	var res condition.Result
	if err != nil {
		res = condition.Result{Err: err.Error(), Kind: condition.EvalError}
	} else {
		res = r.opts.Evaluator.Evaluate(expr, condition.Context{
			Player: r.player,
			Quest:  map[string]any{"id": n.ID, "status": "active", "progress": 0},
			Input:  evalInput,
		})
	}

	result := res.Value
	entry := entryFor(n, StatusSuccess, "", input)
	entry.ConditionResult = &result
	entry.Expression = expr

	want := quest.EdgeFailure
	if result {
		want = quest.EdgeSuccess
	}
	var next *quest.Edge
	for _, e := range r.graph.Outgoing(n.ID) {
		if e.Kind() == want {
			next = &e
			break
		}
	}

	if next == nil {
		entry.Status = StatusError
		entry.ErrorKind = BranchResolutionError
		entry.Message = fmt.Sprintf("condition evaluated to %t but no %s edge exists", result, want)
		r.fail(entry)
		return
	}

	entry.Message = "condition not met"
	if result {
		entry.Message = "condition met"
	}
	if res.Failed() {
		entry.Message += fmt.Sprintf(" (%s: %s)", res.Kind, res.Err)
	}
	r.record(entry)
	r.schedule(gen, next.Target, input)
}

// resolveExpression returns the expression for a condition and the input it
// reads. Auto conditions derive the expression from the source node's kind
// and read that node's latest output when it has run.
func (r *Runtime) resolveExpression(d *quest.ConditionData, input map[string]any) (string, any, error) {
	if !d.UseAutoCondition || d.SourceNodeID == "" {
		return d.Condition, input, nil
	}

	kind := d.InputRefs[d.SourceNodeID].Kind
	threshold := 0
	if src, ok := r.graph.Node(d.SourceNodeID); ok {
		kind = src.Kind
		if t, ok := src.Data.(*quest.TaskData); ok {
			threshold = t.Threshold()
		}
	}
	expr, err := condition.Derive(kind, threshold)
	if err != nil {
		return "", input, err
	}
	if out, ok := r.outputs[d.SourceNodeID]; ok {
		return expr, out, nil
	}
	return expr, input, nil
}

func (r *Runtime) record(e TraceEntry) {
	r.trace = append(r.trace, e)

	fields := map[string]interface{}{
		"node_id": e.NodeID,
		"kind":    string(e.NodeKind),
		"status":  string(e.Status),
	}
	if e.ConditionResult != nil {
		fields["condition_result"] = *e.ConditionResult
	}
	if e.Status == StatusError {
		fields["error_kind"] = string(e.ErrorKind)
		r.emitEvent("error", "node.failed", fields)
		return
	}
	r.emitEvent("info", "node.completed", fields)
}

func (r *Runtime) fail(e TraceEntry) {
	r.record(e)
	r.state = RunStateFailed
	r.failure = e.Message
	r.emitEvent("error", "run.failed", map[string]interface{}{
		"node_id":    e.NodeID,
		"error_kind": string(e.ErrorKind),
		"steps":      r.steps,
	})
	r.finish()
}

func (r *Runtime) complete() {
	r.state = RunStateCompleted
	r.emitEvent("info", "run.completed", map[string]interface{}{
		"steps": r.steps,
		"level": r.player.Level,
	})
	r.finish()
}

// finish hands the terminal result to the run's waiter and wakes Done
// watchers. Caller holds r.mu.
func (r *Runtime) finish() {
	r.final <- r.result()
	close(r.done)
}

func (r *Runtime) emitEvent(level, name string, fields map[string]interface{}) {
	fields["session_id"] = r.sessionID
	events.Emit(level, name, "", fields)
}

// State returns the current run state.
func (r *Runtime) State() RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// SessionID returns the id of the current or most recent run.
func (r *Runtime) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}

// Trace returns a copy of the entries recorded so far.
func (r *Runtime) Trace() []TraceEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneTrace(r.trace)
}

// Player returns a copy of the player state.
func (r *Runtime) Player() PlayerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.player.Clone()
}

// Done returns a channel closed when the current run ends for any reason.
func (r *Runtime) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/questforge/questgraph/internal/events"
	"github.com/questforge/questgraph/internal/quest"
)

func node(id string, data quest.NodeData) quest.Node {
	return quest.Node{ID: id, Kind: data.Kind(), Data: data}
}

func edge(id, source, target string, kind quest.EdgeKind) quest.Edge {
	return quest.Edge{ID: id, Source: source, Target: target, Data: quest.EdgeData{Kind: kind}}
}

func newTestRuntime(opts Options) (*Runtime, *ManualScheduler) {
	sched := NewManualScheduler()
	opts.Scheduler = sched
	if opts.Seed == 0 {
		opts.Seed = 42
	}
	return NewRuntime(opts), sched
}

func runToEnd(t *testing.T, g quest.Graph, opts Options) (*Runtime, RunResult) {
	t.Helper()
	rt, sched := newTestRuntime(opts)
	if err := rt.Start(g); err != nil {
		t.Fatalf("failed to start run: %v", err)
	}
	sched.RunUntilIdle(10000)
	return rt, rt.Result()
}

// scenarioA: start -> task -> end
func scenarioA() quest.Graph {
	return quest.Graph{
		Nodes: []quest.Node{
			node("start", &quest.StartData{Base: quest.Base{Label: "Begin"}}),
			node("task", &quest.TaskData{
				Base:          quest.Base{Label: "Slay wolves", OutputData: map[string]any{"status": "completed"}},
				Objective:     "Slay 3 wolves",
				RequiredCount: 3,
			}),
			node("end", &quest.EndData{Base: quest.Base{Label: "Done"}}),
		},
		Edges: []quest.Edge{
			edge("e1", "start", "task", ""),
			edge("e2", "task", "end", ""),
		},
	}
}

// scenarioB: start -> condition -> {success: rewardA, failure: rewardB}
func scenarioB() quest.Graph {
	return quest.Graph{
		Nodes: []quest.Node{
			node("start", &quest.StartData{}),
			node("cond", &quest.ConditionData{Condition: "player.level >= 10"}),
			node("rewardA", &quest.RewardData{RewardType: quest.RewardCurrency, RewardValue: 100}),
			node("rewardB", &quest.RewardData{RewardType: quest.RewardCurrency, RewardValue: 5}),
		},
		Edges: []quest.Edge{
			edge("e1", "start", "cond", ""),
			edge("e2", "cond", "rewardA", quest.EdgeSuccess),
			edge("e3", "cond", "rewardB", quest.EdgeFailure),
		},
	}
}

func TestLinearRunCompletes(t *testing.T) {
	events.Clear()
	rt, res := runToEnd(t, scenarioA(), Options{})

	if res.State != RunStateCompleted {
		t.Fatalf("expected completed, got %s (%s)", res.State, res.Error)
	}
	if len(res.Trace) != 3 {
		t.Fatalf("expected 3 trace entries, got %d: %+v", len(res.Trace), res.Trace)
	}

	wantIDs := []string{"start", "task", "end"}
	for i, e := range res.Trace {
		if e.NodeID != wantIDs[i] {
			t.Errorf("entry %d: expected node %s, got %s", i, wantIDs[i], e.NodeID)
		}
		if e.Status != StatusSuccess {
			t.Errorf("entry %d: expected success, got %s", i, e.Status)
		}
	}
	if res.Trace[1].OutputData["status"] != "completed" {
		t.Errorf("expected task output status completed, got %v", res.Trace[1].OutputData["status"])
	}
	if res.Trace[2].Message != FlowEnded {
		t.Errorf("expected final entry %q, got %q", FlowEnded, res.Trace[2].Message)
	}
	if res.Trace[0].OutputData["gameVersion"] != DefaultGameVersion || res.Trace[0].OutputData["sessionId"] != "sim-1" {
		t.Errorf("expected start marker, got %v", res.Trace[0].OutputData)
	}

	if res.Player.Experience != DefaultTaskExperience || res.Player.Level != 1 {
		t.Errorf("expected %d xp at level 1, got %+v", DefaultTaskExperience, res.Player)
	}
	if !res.Player.QuestFlags["task:task"] {
		t.Error("expected task:task flag set")
	}
	if _, ok := res.Outputs["task"]; !ok {
		t.Error("expected task output recorded")
	}
	if _, ok := res.Outputs["start"]; ok {
		t.Error("expected start output not recorded for write back")
	}

	select {
	case <-rt.Done():
	default:
		t.Error("expected done channel closed")
	}

	found := false
	for _, e := range events.Snapshot() {
		if e.Name == "run.completed" {
			found = true
		}
	}
	if !found {
		t.Error("expected run.completed event")
	}
}

func TestConditionTakesFailureBranch(t *testing.T) {
	_, res := runToEnd(t, scenarioB(), Options{})

	if res.State != RunStateCompleted {
		t.Fatalf("expected completed, got %s (%s)", res.State, res.Error)
	}
	cond := res.Trace[1]
	if cond.NodeID != "cond" || cond.ConditionResult == nil || *cond.ConditionResult {
		t.Fatalf("expected condition entry with result false, got %+v", cond)
	}
	if cond.Expression != "player.level >= 10" {
		t.Errorf("expected expression recorded, got %q", cond.Expression)
	}
	if res.Trace[2].NodeID != "rewardB" {
		t.Errorf("expected rewardB executed next, got %s", res.Trace[2].NodeID)
	}
	for _, e := range res.Trace {
		if e.NodeID == "rewardA" {
			t.Error("untaken branch must not appear in trace")
		}
	}
	if res.Player.Currency != 5 {
		t.Errorf("expected 5 currency, got %d", res.Player.Currency)
	}
}

func TestConditionTakesSuccessBranch(t *testing.T) {
	_, res := runToEnd(t, scenarioB(), Options{InitialPlayer: &PlayerState{Level: 12}})

	if res.Trace[2].NodeID != "rewardA" {
		t.Errorf("expected rewardA executed, got %s", res.Trace[2].NodeID)
	}
	if res.Player.Currency != 100 {
		t.Errorf("expected 100 currency, got %d", res.Player.Currency)
	}
}

func TestBranchResolutionFailure(t *testing.T) {
	g := scenarioB()
	g.Edges = g.Edges[:2] // success edge only

	_, res := runToEnd(t, g, Options{})

	if res.State != RunStateFailed {
		t.Fatalf("expected failed, got %s", res.State)
	}
	last := res.Trace[len(res.Trace)-1]
	if last.Status != StatusError || last.ErrorKind != BranchResolutionError {
		t.Errorf("expected BranchResolutionError entry, got %+v", last)
	}
	if last.ConditionResult == nil || *last.ConditionResult {
		t.Errorf("expected condition result false on failing entry")
	}
	if res.Error == "" {
		t.Error("expected failure message")
	}
}

func TestInvalidExpressionFailsClosed(t *testing.T) {
	g := scenarioB()
	g.Nodes[1] = node("cond", &quest.ConditionData{Condition: "world.level > 1"})

	_, res := runToEnd(t, g, Options{InitialPlayer: &PlayerState{Level: 50}})

	cond := res.Trace[1]
	if cond.ConditionResult == nil || *cond.ConditionResult {
		t.Fatalf("expected false result, got %+v", cond)
	}
	if !strings.Contains(cond.Message, "UnknownField") {
		t.Errorf("expected diagnostic in message, got %q", cond.Message)
	}
	if res.Trace[2].NodeID != "rewardB" {
		t.Errorf("expected failure branch, got %s", res.Trace[2].NodeID)
	}
}

func TestAutoConditionReadsSourceOutput(t *testing.T) {
	g := quest.Graph{
		Nodes: []quest.Node{
			node("start", &quest.StartData{}),
			node("task", &quest.TaskData{SimulatedStatus: quest.TaskInProgress, SimulatedProgress: 80, CompletionThreshold: 75}),
			node("cond", &quest.ConditionData{
				UseAutoCondition: true,
				SourceNodeID:     "task",
				InputRefs:        map[string]quest.InputRef{"task": {ID: "task", Kind: quest.KindTask}},
			}),
			node("win", &quest.EndData{}),
			node("lose", &quest.EndData{}),
		},
		Edges: []quest.Edge{
			edge("e1", "start", "task", ""),
			edge("e2", "task", "cond", ""),
			edge("e3", "cond", "win", quest.EdgeSuccess),
			edge("e4", "cond", "lose", quest.EdgeFailure),
		},
	}

	_, res := runToEnd(t, g, Options{})

	if got := res.Trace[len(res.Trace)-1].NodeID; got != "win" {
		t.Errorf("expected win, got %s", got)
	}
	if !strings.Contains(res.Trace[2].Expression, "input.progress >= 75") {
		t.Errorf("expected derived expression with threshold 75, got %q", res.Trace[2].Expression)
	}
	if res.Player.Experience != 0 {
		t.Errorf("expected no xp for unfinished task, got %d", res.Player.Experience)
	}
}

func TestExperienceRollover(t *testing.T) {
	g := quest.Graph{
		Nodes: []quest.Node{
			node("start", &quest.StartData{}),
			node("t1", &quest.TaskData{}),
			node("t2", &quest.TaskData{}),
			node("xp", &quest.RewardData{RewardType: quest.RewardExperience, RewardValue: 250}),
			node("sword", &quest.RewardData{RewardType: quest.RewardItem, RewardValue: 1, ItemID: "sword", ItemName: "Iron Sword"}),
			node("flag", &quest.RewardData{RewardType: quest.RewardFlag, Flag: "met_king"}),
			node("end", &quest.EndData{}),
		},
		Edges: []quest.Edge{
			edge("e1", "start", "t1", ""),
			edge("e2", "t1", "t2", ""),
			edge("e3", "t2", "xp", ""),
			edge("e4", "xp", "sword", ""),
			edge("e5", "sword", "flag", ""),
			edge("e6", "flag", "end", ""),
		},
	}

	_, res := runToEnd(t, g, Options{TaskExperience: 60, LevelThreshold: 100})

	want := PlayerState{
		Level:      4,
		Experience: 70,
		Inventory:  []Item{{ID: "sword", Name: "Iron Sword", Quantity: 1}},
		QuestFlags: map[string]bool{"task:t1": true, "task:t2": true, "met_king": true},
	}
	if diff := cmp.Diff(want, res.Player); diff != "" {
		t.Errorf("player mismatch (-want +got):\n%s", diff)
	}
}

func TestUnknownRewardTypeLeavesPlayer(t *testing.T) {
	g := quest.Graph{
		Nodes: []quest.Node{
			node("start", &quest.StartData{}),
			node("gift", &quest.RewardData{RewardType: "reputation", RewardValue: 10}),
		},
		Edges: []quest.Edge{edge("e1", "start", "gift", "")},
	}

	_, res := runToEnd(t, g, Options{})

	if diff := cmp.Diff(NewPlayerState(), res.Player); diff != "" {
		t.Errorf("expected untouched player (-want +got):\n%s", diff)
	}
	if !strings.Contains(res.Trace[1].Message, "warning") {
		t.Errorf("expected warning message, got %q", res.Trace[1].Message)
	}
	// leaf node: its own entry plus the closing entry
	if len(res.Trace) != 3 || res.Trace[2].Message != FlowEnded {
		t.Errorf("expected closing flow ended entry, got %+v", res.Trace)
	}
}

func TestDialogueOutput(t *testing.T) {
	g := quest.Graph{
		Nodes: []quest.Node{
			node("start", &quest.StartData{}),
			node("talk", &quest.DialogueData{Character: "Elder", Text: "Will you help?", Choices: []string{"yes", "no"}}),
			node("end", &quest.EndData{}),
		},
		Edges: []quest.Edge{edge("e1", "start", "talk", ""), edge("e2", "talk", "end", "")},
	}

	_, res := runToEnd(t, g, Options{})

	out := res.Trace[1].OutputData
	if out["selectedChoice"] != "yes" || out["character"] != "Elder" {
		t.Errorf("unexpected dialogue output: %v", out)
	}
	if diff := cmp.Diff(NewPlayerState(), res.Player); diff != "" {
		t.Errorf("dialogue must not change the player (-want +got):\n%s", diff)
	}
}

func TestDeterministicRuns(t *testing.T) {
	ignoreDisplay := cmpopts.IgnoreMapEntries(func(k string, _ any) bool {
		return k == "timeSpent" || k == "startedAt"
	})

	_, first := runToEnd(t, scenarioB(), Options{Seed: 1})
	_, second := runToEnd(t, scenarioB(), Options{Seed: 99, Clock: func() time.Time { return time.Unix(0, 0) }})
	if diff := cmp.Diff(first, second, ignoreDisplay); diff != "" {
		t.Errorf("runs differ (-first +second):\n%s", diff)
	}

	_, a := runToEnd(t, scenarioA(), Options{Seed: 1})
	_, b := runToEnd(t, scenarioA(), Options{Seed: 2})
	if diff := cmp.Diff(a, b, ignoreDisplay); diff != "" {
		t.Errorf("runs differ (-first +second):\n%s", diff)
	}
}

func TestStartRequiresSingleStartNode(t *testing.T) {
	rt, _ := newTestRuntime(Options{})

	g := scenarioA()
	g.Nodes = g.Nodes[1:]
	if err := rt.Start(g); !errors.Is(err, ErrMissingStartNode) {
		t.Errorf("expected ErrMissingStartNode, got %v", err)
	}
	if rt.State() != RunStateIdle {
		t.Errorf("expected idle after failed start, got %s", rt.State())
	}

	g = scenarioA()
	g.Nodes = append(g.Nodes, node("start2", &quest.StartData{}))
	if err := rt.Start(g); !errors.Is(err, ErrMultipleStartNodes) {
		t.Errorf("expected ErrMultipleStartNodes, got %v", err)
	}
}

func TestStartWhileRunning(t *testing.T) {
	rt, _ := newTestRuntime(Options{})
	if err := rt.Start(scenarioA()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := rt.Start(scenarioA()); !errors.Is(err, ErrRunActive) {
		t.Errorf("expected ErrRunActive, got %v", err)
	}
}

func TestCancelIgnoresStaleContinuations(t *testing.T) {
	rt, sched := newTestRuntime(Options{})
	if err := rt.Start(scenarioA()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	sched.Fire() // start node
	if len(rt.Trace()) != 1 {
		t.Fatalf("expected 1 entry after first step, got %d", len(rt.Trace()))
	}

	if !rt.Cancel() {
		t.Fatal("expected cancel to succeed")
	}
	if rt.State() != RunStateIdle {
		t.Errorf("expected idle after cancel, got %s", rt.State())
	}

	// the task step was queued before the cancel; firing it must do nothing
	if !sched.Fire() {
		t.Fatal("expected a queued continuation")
	}
	if len(rt.Trace()) != 1 {
		t.Errorf("expected trace unchanged after cancel, got %d entries", len(rt.Trace()))
	}
	if rt.Player().Experience != 0 {
		t.Errorf("expected player unchanged after cancel, got %+v", rt.Player())
	}
	if rt.Cancel() {
		t.Error("expected second cancel to be a no-op")
	}
}

func TestRestartAfterCancel(t *testing.T) {
	rt, sched := newTestRuntime(Options{})
	rt.Start(scenarioA())
	sched.Fire()
	rt.Cancel()

	if err := rt.Start(scenarioA()); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	sched.RunUntilIdle(100)

	res := rt.Result()
	if res.State != RunStateCompleted || len(res.Trace) != 3 {
		t.Errorf("expected fresh completed run, got %s with %d entries", res.State, len(res.Trace))
	}
	if res.SessionID != "sim-2" {
		t.Errorf("expected sim-2, got %s", res.SessionID)
	}

	rt.Reset()
	if len(rt.Trace()) != 0 || rt.State() != RunStateIdle {
		t.Error("expected reset to clear the run")
	}
}

func TestStepLimit(t *testing.T) {
	g := quest.Graph{
		Nodes: []quest.Node{
			node("start", &quest.StartData{}),
			node("grind", &quest.TaskData{}),
			node("talk", &quest.DialogueData{}),
		},
		Edges: []quest.Edge{
			edge("e1", "start", "grind", ""),
			edge("e2", "grind", "talk", ""),
			edge("e3", "talk", "grind", ""),
		},
	}

	_, res := runToEnd(t, g, Options{MaxSteps: 10})

	if res.State != RunStateFailed {
		t.Fatalf("expected failed, got %s", res.State)
	}
	last := res.Trace[len(res.Trace)-1]
	if last.ErrorKind != StepLimitExceeded {
		t.Errorf("expected StepLimitExceeded, got %+v", last)
	}
	if len(res.Trace) != 11 {
		t.Errorf("expected 10 steps plus the failing entry, got %d", len(res.Trace))
	}
}

func TestSnapshotIgnoresLaterEdits(t *testing.T) {
	g := scenarioA()
	rt, sched := newTestRuntime(Options{})
	if err := rt.Start(g); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	g.Nodes[1].Data.(*quest.TaskData).SimulatedStatus = quest.TaskFailed
	g.Edges = nil

	sched.RunUntilIdle(100)
	res := rt.Result()
	if len(res.Trace) != 3 || res.Trace[1].OutputData["status"] != "completed" {
		t.Errorf("expected run to use the snapshot taken at start, got %+v", res.Trace)
	}
}

func TestSimulateWithTimers(t *testing.T) {
	rt := NewRuntime(Options{Seed: 7})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := rt.Simulate(ctx, scenarioB())
	if err != nil {
		t.Fatalf("simulate failed: %v", err)
	}
	if res.State != RunStateCompleted {
		t.Errorf("expected completed, got %s", res.State)
	}
}

func TestSimulateCancelledByContext(t *testing.T) {
	rt := NewRuntime(Options{Seed: 7, StepDelay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := rt.Simulate(ctx, scenarioA())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if res.State != RunStateIdle || len(res.Trace) != 0 {
		t.Errorf("expected idle run with empty trace, got %s with %d entries", res.State, len(res.Trace))
	}
}

func TestStartRunDeliversItsOwnResult(t *testing.T) {
	rt, sched := newTestRuntime(Options{})

	first, err := rt.StartRun(scenarioA())
	if err != nil {
		t.Fatalf("first start: %v", err)
	}
	sched.RunUntilIdle(100)

	// A second run begins before the first result is read.
	second, err := rt.StartRun(scenarioA())
	if err != nil {
		t.Fatalf("second start: %v", err)
	}

	res := <-first
	if res.SessionID != "sim-1" || res.State != RunStateCompleted {
		t.Fatalf("first result = %s %s, want sim-1 completed", res.SessionID, res.State)
	}
	if res.Outputs["task"]["status"] != "completed" || len(res.Trace) != 3 {
		t.Errorf("first result lost its run data: outputs=%v trace=%d", res.Outputs, len(res.Trace))
	}

	rt.Cancel()
	res = <-second
	if res.SessionID != "sim-2" || res.State != RunStateIdle || len(res.Outputs) != 0 {
		t.Errorf("second result = %s %s outputs=%v", res.SessionID, res.State, res.Outputs)
	}
}

func TestNodeStartedPrecedesOutcome(t *testing.T) {
	events.Clear()
	runToEnd(t, scenarioA(), Options{})

	var seq []string
	for _, e := range events.Snapshot() {
		if e.Name == "node.started" || e.Name == "node.completed" {
			seq = append(seq, e.Name+":"+e.Fields["node_id"].(string))
		}
	}
	want := []string{
		"node.started:start", "node.completed:start",
		"node.started:task", "node.completed:task",
		"node.started:end", "node.completed:end",
	}
	if diff := cmp.Diff(want, seq); diff != "" {
		t.Errorf("node event order mismatch (-want +got):\n%s", diff)
	}
}

package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// recordingInvoker records every invocation and answers with fn, or with the
// rendered config when fn is nil.
type recordingInvoker struct {
	mu    sync.Mutex
	calls []Invocation
	fn    func(ctx context.Context, inv Invocation) (any, error)
}

func (r *recordingInvoker) Invoke(ctx context.Context, inv Invocation) (any, error) {
	r.mu.Lock()
	r.calls = append(r.calls, inv)
	r.mu.Unlock()
	if r.fn != nil {
		return r.fn(ctx, inv)
	}
	return map[string]any{"config": inv.Config}, nil
}

func (r *recordingInvoker) Calls() []Invocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Invocation{}, r.calls...)
}

func chain(ids ...NodeID) ([]Node, []Edge) {
	nodes := []Node{{ID: "start", Type: NodeTypeStart}}
	for _, id := range ids {
		nodes = append(nodes, Node{ID: id, Type: NodeTypeAction, Label: "log"})
	}
	nodes = append(nodes, Node{ID: "end", Type: NodeTypeEnd})

	var edges []Edge
	for i := 0; i+1 < len(nodes); i++ {
		edges = append(edges, Edge{
			ID:     EdgeID(fmt.Sprintf("e%d", i)),
			Source: nodes[i].ID,
			Target: nodes[i+1].ID,
		})
	}
	return nodes, edges
}

func TestExecute_EndToEnd(t *testing.T) {
	nodes, edges := leadGraph()
	gmail := &recordingInvoker{fn: func(ctx context.Context, inv Invocation) (any, error) {
		return map[string]any{"messageId": "m-1"}, nil
	}}

	ec := NewExecutionContext("ws-1", "user-1", nil)
	ec.Results["lead"] = map[string]any{"email": "jane@example.com", "name": "Jane"}

	report := ExecuteWorkflow(context.Background(), nodes, edges, ec, WithIntegrations(gmail))

	assert.True(t, report.Success())
	assert.Equal(t, StatusCompleted, report.Status())
	assert.Equal(t, []NodeID{"start", "send_email", "end"}, report.ExecutedNodes())
	assert.Empty(t, report.Errors())

	calls := gmail.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "jane@example.com", calls[0].Config["to"])
	assert.Equal(t, "Hello Jane", calls[0].Config["body"])
	assert.Equal(t, "Hi", calls[0].Config["subject"])
	assert.Equal(t, "ws-1", calls[0].WorkspaceID)
	assert.Equal(t, "user-1", calls[0].UserID)
	assert.Equal(t, "gmail", calls[0].Node.Integration)
	assert.Equal(t, ec.ExecutionID, calls[0].ExecutionID)

	assert.Equal(t, map[string]any{"messageId": "m-1"}, report.Results()["send_email"])
	assert.Equal(t, true, ec.Results["start"].(map[string]any)["started"])
	assert.Equal(t, true, ec.Results["end"].(map[string]any)["completed"])

	steps := report.Steps()
	require.Len(t, steps, 3)
	for i, s := range steps {
		assert.Equal(t, i+1, s.StepNumber)
		assert.Equal(t, StepCompleted, s.Status)
	}
}

func TestExecute_IntegrationFailure(t *testing.T) {
	nodes, edges := leadGraph()
	failing := &recordingInvoker{fn: func(ctx context.Context, inv Invocation) (any, error) {
		return nil, errors.New("channel_not_found")
	}}

	report := ExecuteWorkflow(context.Background(), nodes, edges, NewExecutionContext("ws", "u", nil), WithIntegrations(failing))

	assert.False(t, report.Success())
	assert.Equal(t, StatusFailed, report.Status())
	assert.Equal(t, []NodeID{"start", "send_email"}, report.ExecutedNodes())
	assert.Equal(t, []NodeError{{NodeID: "send_email", Kind: KindNodeActionFailed, Err: "channel_not_found"}}, report.Errors())
	assert.True(t, errors.Is(report.Errors()[0], ErrNodeActionFailed))

	steps := report.Steps()
	require.Len(t, steps, 2)
	assert.Equal(t, StepFailed, steps[1].Status)
	assert.Equal(t, "channel_not_found", steps[1].Error)
	assert.NotContains(t, report.Results(), "send_email")
}

func conditionGraph(edges ...Edge) ([]Node, []Edge) {
	nodes := []Node{
		{ID: "start", Type: NodeTypeStart},
		{ID: "check", Type: NodeTypeCondition},
		{ID: "hot", Type: NodeTypeAction, Label: "log"},
		{ID: "cold", Type: NodeTypeAction, Label: "log"},
		{ID: "end", Type: NodeTypeEnd},
	}
	all := []Edge{{ID: "e0", Source: "start", Target: "check"}}
	all = append(all, edges...)
	all = append(all,
		Edge{ID: "e-hot-end", Source: "hot", Target: "end"},
		Edge{ID: "e-cold-end", Source: "cold", Target: "end"},
	)
	return nodes, all
}

func TestExecute_ConditionFollowsTruthyEdge(t *testing.T) {
	nodes, edges := conditionGraph(
		Edge{ID: "to-hot", Source: "check", Target: "hot", Condition: "temperature > 25"},
		Edge{ID: "to-cold", Source: "check", Target: "cold", Condition: "temperature <= 25"},
	)
	actions := &recordingInvoker{}

	for temp, want := range map[float64]NodeID{30: "hot", 10: "cold"} {
		ec := NewExecutionContext("ws", "u", map[string]any{"temperature": temp})
		report := ExecuteWorkflow(context.Background(), nodes, edges, ec, WithActions(actions))

		require.True(t, report.Success(), "temperature %v", temp)
		assert.Equal(t, []NodeID{"start", "check", want, "end"}, report.ExecutedNodes())
		branch := report.Results()["check"].(map[string]any)
		assert.Equal(t, true, branch["matched"])
		assert.Equal(t, string(want), branch["target"])
	}
}

func TestExecute_ConditionDefaultBranch(t *testing.T) {
	nodes, edges := conditionGraph(
		Edge{ID: "else", Source: "check", Target: "cold", Label: "otherwise"},
		Edge{ID: "to-hot", Source: "check", Target: "hot", Condition: "temperature > 25"},
	)

	report := ExecuteWorkflow(context.Background(), nodes, edges,
		NewExecutionContext("ws", "u", map[string]any{"temperature": 5}),
		WithActions(&recordingInvoker{}))

	require.True(t, report.Success())
	assert.Equal(t, []NodeID{"start", "check", "cold", "end"}, report.ExecutedNodes())
	branch := report.Results()["check"].(map[string]any)
	assert.Equal(t, false, branch["matched"])
	assert.Equal(t, "else", branch["branch"])
	assert.Equal(t, "otherwise", branch["label"])
}

func TestExecute_ConditionAllEdgesUnconditioned(t *testing.T) {
	nodes, edges := conditionGraph(
		Edge{ID: "a", Source: "check", Target: "hot"},
		Edge{ID: "b", Source: "check", Target: "cold"},
	)

	report := ExecuteWorkflow(context.Background(), nodes, edges, nil, WithActions(&recordingInvoker{}))

	require.True(t, report.Success())
	assert.Equal(t, []NodeID{"start", "check", "hot", "end"}, report.ExecutedNodes())
}

func TestExecute_NoMatchingBranch(t *testing.T) {
	nodes, edges := conditionGraph(
		Edge{ID: "to-hot", Source: "check", Target: "hot", Condition: "temperature > 25"},
	)

	report := ExecuteWorkflow(context.Background(), nodes, edges,
		NewExecutionContext("ws", "u", map[string]any{"temperature": 5}),
		WithActions(&recordingInvoker{}))

	assert.False(t, report.Success())
	assert.Equal(t, []NodeID{"start", "check"}, report.ExecutedNodes())
	errs := report.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, NodeID("check"), errs[0].NodeID)
	assert.Equal(t, KindNoMatchingBranch, errs[0].Kind)
	assert.ErrorIs(t, errs[0], ErrNoMatchingBranch)
}

func TestExecute_ConditionExpressionError(t *testing.T) {
	nodes, edges := conditionGraph(
		Edge{ID: "bad", Source: "check", Target: "hot", Condition: "temperature >"},
	)

	report := ExecuteWorkflow(context.Background(), nodes, edges, nil)

	errs := report.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, NodeID("check"), errs[0].NodeID)
	assert.Equal(t, KindNodeActionFailed, errs[0].Kind)
	assert.Contains(t, errs[0].Err, "bad")
}

func TestExecute_CycleDetected(t *testing.T) {
	nodes := []Node{
		{ID: "start", Type: NodeTypeStart},
		{ID: "a", Type: NodeTypeAction},
		{ID: "b", Type: NodeTypeAction},
		{ID: "end", Type: NodeTypeEnd},
	}
	edges := []Edge{
		{ID: "e1", Source: "start", Target: "a"},
		{ID: "e2", Source: "a", Target: "b"},
		{ID: "e3", Source: "b", Target: "a"},
		{ID: "e4", Source: "b", Target: "end"},
	}
	actions := &recordingInvoker{}

	report := ExecuteWorkflow(context.Background(), nodes, edges, nil, WithActions(actions))

	assert.Equal(t, StatusFailed, report.Status())
	assert.Equal(t, []NodeID{"start", "a", "b"}, report.ExecutedNodes())
	errs := report.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, NodeID("a"), errs[0].NodeID)
	assert.Equal(t, KindCycleDetected, errs[0].Kind)
	assert.Len(t, actions.Calls(), 2)
}

func TestExecute_MaxVisitsAllowsBoundedRevisits(t *testing.T) {
	nodes := []Node{
		{ID: "start", Type: NodeTypeStart},
		{ID: "loop", Type: NodeTypeAction},
		{ID: "end", Type: NodeTypeEnd},
	}
	edges := []Edge{
		{ID: "e1", Source: "start", Target: "loop"},
		{ID: "e2", Source: "loop", Target: "loop"},
	}

	report := ExecuteWorkflow(context.Background(), nodes, edges, nil,
		WithActions(&recordingInvoker{}), WithMaxVisits(3))

	assert.Equal(t, []NodeID{"start", "loop", "loop", "loop"}, report.ExecutedNodes())
	first, ok := report.FirstError()
	require.True(t, ok)
	assert.Equal(t, KindCycleDetected, first.Kind)
}

func TestExecute_MissingStartNode(t *testing.T) {
	for name, nodes := range map[string][]Node{
		"none": {{ID: "end", Type: NodeTypeEnd}},
		"two":  {{ID: "s1", Type: NodeTypeStart}, {ID: "s2", Type: NodeTypeStart}, {ID: "end", Type: NodeTypeEnd}},
	} {
		t.Run(name, func(t *testing.T) {
			report := ExecuteWorkflow(context.Background(), nodes, nil, nil)

			assert.False(t, report.Success())
			assert.Empty(t, report.ExecutedNodes())
			errs := report.Errors()
			require.Len(t, errs, 1)
			assert.Equal(t, WorkflowNodeID, errs[0].NodeID)
			assert.Equal(t, KindMissingStartNode, errs[0].Kind)
		})
	}
}

func TestExecute_DanglingEdge(t *testing.T) {
	report := ExecuteWorkflow(context.Background(),
		[]Node{{ID: "start", Type: NodeTypeStart}, {ID: "end", Type: NodeTypeEnd}},
		[]Edge{{ID: "e1", Source: "start", Target: "ghost"}},
		nil)

	assert.Equal(t, []NodeID{"start"}, report.ExecutedNodes())
	errs := report.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, NodeID("start"), errs[0].NodeID)
	assert.Equal(t, KindDanglingEdge, errs[0].Kind)
}

func TestExecute_UnknownNodeType(t *testing.T) {
	report := ExecuteWorkflow(context.Background(),
		[]Node{{ID: "start", Type: NodeTypeStart}, {ID: "w", Type: "weather"}, {ID: "end", Type: NodeTypeEnd}},
		[]Edge{{ID: "e1", Source: "start", Target: "w"}, {ID: "e2", Source: "w", Target: "end"}},
		nil)

	errs := report.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, NodeID("w"), errs[0].NodeID)
	assert.Equal(t, KindNodeActionFailed, errs[0].Kind)
}

func TestExecute_MissingInvokerFailsNode(t *testing.T) {
	nodes, edges := leadGraph()

	report := ExecuteWorkflow(context.Background(), nodes, edges, nil)

	first, ok := report.FirstError()
	require.True(t, ok)
	assert.Equal(t, NodeID("send_email"), first.NodeID)
	assert.Contains(t, first.Err, "no invoker configured")
}

func TestExecute_PanicIsCaptured(t *testing.T) {
	nodes, edges := chain("boom")
	actions := InvokerFunc(func(ctx context.Context, inv Invocation) (any, error) {
		panic("kaboom")
	})

	report := ExecuteWorkflow(context.Background(), nodes, edges, nil, WithActions(actions))

	first, ok := report.FirstError()
	require.True(t, ok)
	assert.Equal(t, NodeID("boom"), first.NodeID)
	assert.Contains(t, first.Err, "kaboom")
}

func TestExecute_ExhaustedTraversalCompletes(t *testing.T) {
	report := ExecuteWorkflow(context.Background(),
		[]Node{{ID: "start", Type: NodeTypeStart}, {ID: "a", Type: NodeTypeAction}, {ID: "end", Type: NodeTypeEnd}},
		[]Edge{{ID: "e1", Source: "start", Target: "a"}},
		nil, WithActions(&recordingInvoker{}))

	assert.True(t, report.Success())
	assert.Equal(t, []NodeID{"start", "a"}, report.ExecutedNodes())
}

func TestExecute_ActionsSeeEarlierWrites(t *testing.T) {
	nodes := []Node{
		{ID: "start", Type: NodeTypeStart},
		{ID: "set", Type: NodeTypeAction, Config: map[string]any{"action": "set_variable"}},
		{ID: "greet", Type: NodeTypeAction, Config: map[string]any{"message": "Hi {{name}}, order {{set.order}}"}},
		{ID: "end", Type: NodeTypeEnd},
	}
	edges := []Edge{
		{ID: "e1", Source: "start", Target: "set"},
		{ID: "e2", Source: "set", Target: "greet"},
		{ID: "e3", Source: "greet", Target: "end"},
	}
	actions := &recordingInvoker{fn: func(ctx context.Context, inv Invocation) (any, error) {
		if inv.Node.ID == "set" {
			inv.Variables["name"] = "Ada"
			return map[string]any{"order": 42}, nil
		}
		return inv.Config["message"], nil
	}}

	report := ExecuteWorkflow(context.Background(), nodes, edges, nil, WithActions(actions))

	require.True(t, report.Success())
	assert.Equal(t, "Hi Ada, order 42", report.Results()["greet"])
}

func TestExecute_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	nodes, edges := leadGraph()

	report := ExecuteWorkflow(ctx, nodes, edges, nil, WithIntegrations(&recordingInvoker{}))

	assert.Equal(t, StatusCancelled, report.Status())
	assert.False(t, report.Success())
	assert.Empty(t, report.ExecutedNodes())
	assert.Empty(t, report.Errors())
}

func TestExecute_CancelledDuringNode(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	nodes, edges := leadGraph()
	integrations := InvokerFunc(func(ctx context.Context, inv Invocation) (any, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	})

	report := ExecuteWorkflow(ctx, nodes, edges, nil, WithIntegrations(integrations))

	assert.Equal(t, StatusCancelled, report.Status())
	assert.Equal(t, []NodeID{"start", "send_email"}, report.ExecutedNodes())
	assert.Empty(t, report.Errors())
}

func TestExecute_Timeout(t *testing.T) {
	nodes, edges := leadGraph()
	slow := InvokerFunc(func(ctx context.Context, inv Invocation) (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return "too late", nil
		}
	})

	report := ExecuteWorkflow(context.Background(), nodes, edges, nil,
		WithIntegrations(slow), WithTimeout(20*time.Millisecond))

	assert.Equal(t, StatusTimedOut, report.Status())
	assert.Empty(t, report.Errors())
	assert.Less(t, report.Duration(), 5*time.Second)
}

func TestExecute_Observers(t *testing.T) {
	nodes, edges := leadGraph()
	var mu sync.Mutex
	var seen []string
	record := ObserverFunc(func(ctx context.Context, ev Event) {
		mu.Lock()
		defer mu.Unlock()
		assert.NotEmpty(t, ev.ExecutionID)
		seen = append(seen, string(ev.Type)+":"+string(ev.NodeID))
	})

	exec := NewExecutor(WithIntegrations(&recordingInvoker{}), WithObserver(record))
	var finished *ExecutionReport
	report := exec.Execute(context.Background(), NewGraph(nodes, edges), nil, ObserverFunc(func(ctx context.Context, ev Event) {
		if ev.Type == EventRunFinished {
			finished = ev.Report
		}
	}))

	assert.Equal(t, []string{
		"run_started:",
		"node_started:start", "node_completed:start",
		"node_started:send_email", "node_completed:send_email",
		"node_started:end", "node_completed:end",
		"run_finished:",
	}, seen)
	assert.Same(t, report, finished)
}

func TestExecute_PanickingObserverDoesNotAbortRun(t *testing.T) {
	nodes, edges := leadGraph()
	bad := ObserverFunc(func(ctx context.Context, ev Event) { panic("observer") })

	report := ExecuteWorkflow(context.Background(), nodes, edges, nil,
		WithIntegrations(&recordingInvoker{}), WithObserver(bad))

	assert.True(t, report.Success())
}

func TestExecute_AssignsExecutionID(t *testing.T) {
	nodes, edges := leadGraph()
	ec := NewExecutionContext("ws", "u", nil)

	report := ExecuteWorkflow(context.Background(), nodes, edges, ec, WithIntegrations(&recordingInvoker{}))

	assert.True(t, strings.HasPrefix(report.ExecutionID(), "exec_"))
	assert.Equal(t, ec.ExecutionID, report.ExecutionID())

	ec2 := NewExecutionContext("ws", "u", nil)
	ec2.ExecutionID = "fixed"
	report = ExecuteWorkflow(context.Background(), nodes, edges, ec2, WithIntegrations(&recordingInvoker{}))
	assert.Equal(t, "fixed", report.ExecutionID())
}

func TestExecute_Clock(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	tick := 0
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick++
		return base.Add(time.Duration(tick) * time.Millisecond)
	}
	nodes, edges := leadGraph()

	report := ExecuteWorkflow(context.Background(), nodes, edges, nil,
		WithIntegrations(&recordingInvoker{}), WithClock(clock))

	assert.Equal(t, base.Add(time.Millisecond), report.StartedAt())
	assert.True(t, report.FinishedAt().After(report.StartedAt()))
	assert.Equal(t, report.FinishedAt().Sub(report.StartedAt()).Milliseconds(), report.DurationMillis())
}

func TestProperty_LinearRunsAreDeterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("same graph and context give the same executed nodes", prop.ForAll(
		func(n int, seed string) bool {
			ids := make([]NodeID, n)
			for i := range ids {
				ids[i] = NodeID(fmt.Sprintf("step-%d", i))
			}
			nodes, edges := chain(ids...)
			g := NewGraph(nodes, edges)
			exec := NewExecutor(WithActions(&recordingInvoker{}))

			first := exec.Execute(context.Background(), g, NewExecutionContext("ws", "u", map[string]any{"seed": seed}))
			second := exec.Execute(context.Background(), g, NewExecutionContext("ws", "u", map[string]any{"seed": seed}))

			want := append(append([]NodeID{"start"}, ids...), "end")
			return first.Success() && second.Success() &&
				equalIDs(first.ExecutedNodes(), second.ExecutedNodes()) &&
				equalIDs(first.ExecutedNodes(), want)
		},
		gen.IntRange(0, 20),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func equalIDs(a, b []NodeID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestProperty_ConditionTakesExactlyOneBranch(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		score := rapid.IntRange(-1000, 1000).Draw(rt, "score")
		threshold := rapid.IntRange(-1000, 1000).Draw(rt, "threshold")
		nodes, edges := conditionGraph(
			Edge{ID: "to-hot", Source: "check", Target: "hot", Condition: fmt.Sprintf("score > %d", threshold)},
			Edge{ID: "to-cold", Source: "check", Target: "cold", Condition: fmt.Sprintf("score <= %d", threshold)},
		)

		report := ExecuteWorkflow(context.Background(), nodes, edges,
			NewExecutionContext("ws", "u", map[string]any{"score": score}),
			WithActions(&recordingInvoker{}))

		want := NodeID("cold")
		if score > threshold {
			want = "hot"
		}
		got := report.ExecutedNodes()
		if !equalIDs(got, []NodeID{"start", "check", want, "end"}) {
			rt.Fatalf("score=%d threshold=%d executed %v", score, threshold, got)
		}
	})
}

func TestProperty_FailFast(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 10).Draw(rt, "n")
		k := rapid.IntRange(0, n-1).Draw(rt, "failAt")

		ids := make([]NodeID, n)
		for i := range ids {
			ids[i] = NodeID(fmt.Sprintf("a%d", i))
		}
		nodes, edges := chain(ids...)
		actions := InvokerFunc(func(ctx context.Context, inv Invocation) (any, error) {
			if inv.Node.ID == ids[k] {
				return nil, errors.New("boom")
			}
			return "ok", nil
		})

		report := ExecuteWorkflow(context.Background(), nodes, edges, nil, WithActions(actions))

		want := append([]NodeID{"start"}, ids[:k+1]...)
		if !equalIDs(report.ExecutedNodes(), want) {
			rt.Fatalf("executed %v, want %v", report.ExecutedNodes(), want)
		}
		if report.Success() {
			rt.Fatalf("run succeeded")
		}
		errs := report.Errors()
		if len(errs) != 1 || errs[0].NodeID != ids[k] {
			rt.Fatalf("errors %v", errs)
		}
	})
}

func TestExecute_ConditionOnUndefinedVariableTakesDefaultEdge(t *testing.T) {
	nodes := []Node{
		{ID: "start", Type: NodeTypeStart},
		{ID: "qualify", Type: NodeTypeCondition},
		{ID: "yes", Type: NodeTypeAction, Label: "log"},
		{ID: "no", Type: NodeTypeEnd},
		{ID: "end", Type: NodeTypeEnd},
	}
	edges := []Edge{
		{ID: "e1", Source: "start", Target: "qualify"},
		{ID: "e2", Source: "qualify", Target: "yes", Condition: "dealValue >= 1000"},
		{ID: "e3", Source: "qualify", Target: "no"},
		{ID: "e4", Source: "yes", Target: "end"},
	}
	actions := &recordingInvoker{}

	report := ExecuteWorkflow(context.Background(), nodes, edges,
		NewExecutionContext("ws", "u", nil), WithActions(actions))

	assert.Equal(t, StatusCompleted, report.Status())
	assert.Equal(t, []NodeID{"start", "qualify", "no"}, report.ExecutedNodes())
	assert.Empty(t, report.Errors())
	assert.Empty(t, actions.Calls())

	out := report.Results()["qualify"].(map[string]any)
	assert.Equal(t, "e3", out["branch"])
	assert.Equal(t, false, out["matched"])

	report = ExecuteWorkflow(context.Background(), nodes, edges,
		NewExecutionContext("ws", "u", map[string]any{"dealValue": 1500}), WithActions(actions))
	assert.Equal(t, []NodeID{"start", "qualify", "yes", "end"}, report.ExecutedNodes())
}

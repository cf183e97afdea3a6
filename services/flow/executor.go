package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/galaxy-co-ai/galaxyco-ai-v2-sub009/pkg/telemetry"
)

const tracerName = "github.com/galaxy-co-ai/galaxyco-ai-v2-sub009/services/flow"

// DefaultMaxVisits is how many times a single run may enter the same node.
const DefaultMaxVisits = 1

// Executor walks a graph from its start node, one node at a time.
// An Executor is stateless between runs and safe for concurrent use.
type Executor struct {
	actions      Invoker
	integrations Invoker
	logger       *slog.Logger
	tracer       trace.Tracer
	observers    []Observer
	maxVisits    int
	timeout      time.Duration
	now          func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithActions sets the invoker for action nodes.
func WithActions(inv Invoker) Option { return func(e *Executor) { e.actions = inv } }

// WithIntegrations sets the invoker for integration nodes.
func WithIntegrations(inv Invoker) Option { return func(e *Executor) { e.integrations = inv } }

func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Executor) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithObserver adds an observer that sees every run of this executor.
func WithObserver(o Observer) Option {
	return func(e *Executor) { e.observers = append(e.observers, o) }
}

// WithMaxVisits bounds how often one node may be entered per run. Values
// below one are ignored.
func WithMaxVisits(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxVisits = n
		}
	}
}

// WithTimeout bounds the wall-clock time of a whole run.
func WithTimeout(d time.Duration) Option { return func(e *Executor) { e.timeout = d } }

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

// NewExecutor creates an Executor. Without WithActions or WithIntegrations the
// corresponding node types fail when reached.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		logger:    slog.Default(),
		tracer:    otel.Tracer(tracerName),
		maxVisits: DefaultMaxVisits,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecuteWorkflow builds a graph from nodes and edges and runs it once.
func ExecuteWorkflow(ctx context.Context, nodes []Node, edges []Edge, ec *ExecutionContext, opts ...Option) *ExecutionReport {
	return NewExecutor(opts...).Execute(ctx, NewGraph(nodes, edges), ec)
}

// Execute runs g against ec and always returns a complete report. Failures,
// cancellation and timeouts are recorded in the report, never returned.
// The graph is not modified; ec.Variables and ec.Results are.
func (e *Executor) Execute(ctx context.Context, g *Graph, ec *ExecutionContext, observers ...Observer) *ExecutionReport {
	if ec == nil {
		ec = NewExecutionContext("", "", nil)
	}
	if ec.Variables == nil {
		ec.Variables = make(map[string]any)
	}
	if ec.Results == nil {
		ec.Results = make(map[string]any)
	}
	if ec.ExecutionID == "" {
		ec.ExecutionID = NewExecutionID()
	}
	if g == nil {
		g = NewGraph(nil, nil)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	ctx, span := e.tracer.Start(ctx, "workflow.execute", trace.WithAttributes(
		attribute.String(telemetry.ExecutionIDKey, ec.ExecutionID),
		attribute.String(telemetry.WorkspaceIDKey, ec.WorkspaceID),
		attribute.Int("workflow.nodes", len(g.nodes)),
	))
	defer span.End()

	r := &run{
		Executor:  e,
		graph:     g,
		ec:        ec,
		observers: append(append([]Observer{}, e.observers...), observers...),
		logger:    e.logger.With("execution_id", ec.ExecutionID),
		visits:    make(map[NodeID]int),
		startedAt: e.now(),
	}

	r.emit(ctx, Event{Type: EventRunStarted, Timestamp: r.startedAt})
	r.logger.Debug("Workflow execution started", "workspace_id", ec.WorkspaceID, "nodes", len(g.nodes))

	r.traverse(ctx)

	report := newReport(reportState{
		ExecutionID:   ec.ExecutionID,
		Status:        r.status,
		ExecutedNodes: r.executed,
		Errors:        r.errors,
		Steps:         r.steps,
		Results:       ec.Results,
		StartedAt:     r.startedAt,
		FinishedAt:    e.now(),
	})

	span.SetAttributes(attribute.String("workflow.status", string(report.Status())))
	if first, ok := report.FirstError(); ok {
		span.SetStatus(codes.Error, first.Error())
	}

	r.logger.Info("Workflow execution finished",
		"status", report.Status(),
		"executed_nodes", len(r.executed),
		"duration_ms", report.DurationMillis(),
	)
	r.emit(ctx, Event{
		Type:           EventRunFinished,
		Status:         string(report.Status()),
		DurationMillis: report.DurationMillis(),
		Timestamp:      report.FinishedAt(),
		Report:         report,
	})
	return report
}

// run is the mutable state of one traversal.
type run struct {
	*Executor
	graph     *Graph
	ec        *ExecutionContext
	observers []Observer
	logger    *slog.Logger

	visits    map[NodeID]int
	executed  []NodeID
	steps     []Step
	errors    []NodeError
	status    Status
	startedAt time.Time
}

func (r *run) traverse(ctx context.Context) {
	starts := r.graph.NodesOfType(NodeTypeStart)
	if len(starts) != 1 {
		r.fail(WorkflowNodeID, fmt.Errorf("%w: expected exactly one start node, found %d", ErrMissingStartNode, len(starts)))
		return
	}

	current := starts[0]
	for {
		if err := ctx.Err(); err != nil {
			r.interrupt(err)
			return
		}

		r.visits[current.ID]++
		if r.visits[current.ID] > r.maxVisits {
			r.fail(current.ID, fmt.Errorf("%w: node %q entered more than %d time(s)", ErrCycleDetected, current.ID, r.maxVisits))
			return
		}
		r.executed = append(r.executed, current.ID)

		next, done, err := r.step(ctx, current)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				r.interrupt(ctxErr)
				return
			}
			r.fail(current.ID, err)
			return
		}
		if done {
			r.status = StatusCompleted
			return
		}

		node, ok := r.graph.Node(next)
		if !ok {
			r.fail(current.ID, fmt.Errorf("%w: edge from %q targets missing node %q", ErrDanglingEdge, current.ID, next))
			return
		}
		current = node
	}
}

// step runs a single node and records it. done is true when traversal
// should stop successfully after this node.
func (r *run) step(ctx context.Context, node Node) (next NodeID, done bool, err error) {
	ctx, span := r.tracer.Start(ctx, "workflow.node", trace.WithAttributes(
		attribute.String("workflow.node.id", string(node.ID)),
		attribute.String("workflow.node.type", string(node.Type)),
	))
	defer span.End()

	started := r.now()
	r.emit(ctx, Event{Type: EventNodeStarted, NodeID: node.ID, NodeType: node.Type, Timestamp: started})

	output, next, done, err := r.dispatch(ctx, node)
	elapsed := r.now().Sub(started)

	s := Step{
		StepNumber: len(r.steps) + 1,
		NodeID:     node.ID,
		NodeType:   node.Type,
		Label:      node.Label,
		Duration:   elapsed.Milliseconds(),
		Timestamp:  started,
	}
	logger := r.logger.With("node_id", node.ID, "node_type", node.Type)

	if err != nil {
		s.Status = StepFailed
		s.Error = err.Error()
		r.steps = append(r.steps, s)

		telemetry.SetError(span, err, attribute.String(telemetry.ExecutionIDKey, r.ec.ExecutionID))
		logger.Warn("Node failed", "error", err, "duration_ms", s.Duration)
		r.emit(ctx, Event{
			Type: EventNodeFailed, NodeID: node.ID, NodeType: node.Type,
			Status: string(StepFailed), Error: err.Error(),
			DurationMillis: s.Duration, Timestamp: r.now(),
		})
		return "", false, err
	}

	r.ec.Results[string(node.ID)] = output
	s.Status = StepCompleted
	s.Output = cloneValue(output)
	r.steps = append(r.steps, s)

	logger.Debug("Node completed", "duration_ms", s.Duration)
	r.emit(ctx, Event{
		Type: EventNodeCompleted, NodeID: node.ID, NodeType: node.Type,
		Status: string(StepCompleted), Output: cloneValue(output),
		DurationMillis: s.Duration, Timestamp: r.now(),
	})
	return next, done, nil
}

func (r *run) dispatch(ctx context.Context, node Node) (output any, next NodeID, done bool, err error) {
	switch node.Type {
	case NodeTypeStart:
		next, done = r.follow(node)
		return map[string]any{"started": true, "timestamp": r.timestamp()}, next, done, nil

	case NodeTypeEnd:
		return map[string]any{"completed": true, "timestamp": r.timestamp()}, "", true, nil

	case NodeTypeAction:
		output, err = r.invoke(ctx, r.actions, node)
	case NodeTypeIntegration:
		output, err = r.invoke(ctx, r.integrations, node)

	case NodeTypeCondition:
		return r.branch(node)

	default:
		return nil, "", false, fmt.Errorf("%w: node %q has unknown type %q", ErrNodeActionFailed, node.ID, node.Type)
	}

	if err != nil {
		return nil, "", false, err
	}
	next, done = r.follow(node)
	return output, next, done, nil
}

// follow picks the first outgoing edge. A node without one ends the run.
func (r *run) follow(node Node) (NodeID, bool) {
	edges := r.graph.OutgoingEdges(node.ID)
	if len(edges) == 0 {
		return "", true
	}
	return edges[0].Target, false
}

func (r *run) invoke(ctx context.Context, inv Invoker, node Node) (out any, err error) {
	if inv == nil {
		return nil, fmt.Errorf("%w: no invoker configured for %s nodes", ErrNodeActionFailed, node.Type)
	}

	defer func() {
		if p := recover(); p != nil {
			out, err = nil, fmt.Errorf("%w: panic in node %q: %v", ErrNodeActionFailed, node.ID, p)
		}
	}()

	return inv.Invoke(ctx, Invocation{
		ExecutionID: r.ec.ExecutionID,
		WorkspaceID: r.ec.WorkspaceID,
		UserID:      r.ec.UserID,
		Node:        node,
		Config:      RenderConfig(node.Config, r.ec.Variables, r.ec.Results),
		Variables:   r.ec.Variables,
	})
}

// branch evaluates outgoing edge conditions in declaration order. The first
// truthy condition wins; otherwise the first edge without a condition is
// taken.
func (r *run) branch(node Node) (any, NodeID, bool, error) {
	edges := r.graph.OutgoingEdges(node.ID)
	env := conditionEnv(r.ec.Variables, r.ec.Results)

	var fallback *Edge
	for i, edge := range edges {
		if strings.TrimSpace(edge.Condition) == "" {
			if fallback == nil {
				fallback = &edges[i]
			}
			continue
		}
		ok, err := defaultConditions.Evaluate(edge.Condition, env)
		if err != nil {
			return nil, "", false, fmt.Errorf("%w: edge %q: %w", ErrNodeActionFailed, edge.ID, err)
		}
		if ok {
			return branchOutput(edge, true), edge.Target, false, nil
		}
	}
	if fallback != nil {
		return branchOutput(*fallback, false), fallback.Target, false, nil
	}
	return nil, "", false, fmt.Errorf("%w: no outgoing edge of %q qualifies", ErrNoMatchingBranch, node.ID)
}

func branchOutput(edge Edge, matched bool) map[string]any {
	out := map[string]any{
		"branch":  string(edge.ID),
		"target":  string(edge.Target),
		"matched": matched,
	}
	if edge.Label != "" {
		out["label"] = edge.Label
	}
	return out
}

func (r *run) fail(id NodeID, err error) {
	r.status = StatusFailed
	r.errors = append(r.errors, NodeError{NodeID: id, Kind: kindOf(err), Err: err.Error()})
	r.logger.Error("Workflow execution failed", "node_id", id, "error", err)
}

func (r *run) interrupt(err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		r.status = StatusTimedOut
	} else {
		r.status = StatusCancelled
	}
	r.logger.Info("Workflow execution interrupted", "status", r.status)
}

func (r *run) timestamp() string {
	return r.now().UTC().Format(time.RFC3339Nano)
}

func (r *run) emit(ctx context.Context, ev Event) {
	if len(r.observers) == 0 {
		return
	}
	ev.ExecutionID = r.ec.ExecutionID
	ev.WorkspaceID = r.ec.WorkspaceID
	if ev.Timestamp.IsZero() {
		ev.Timestamp = r.now()
	}
	for _, o := range r.observers {
		r.notify(ctx, o, ev)
	}
}

func (r *run) notify(ctx context.Context, o Observer, ev Event) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Observer panicked", "event", ev.Type, "panic", p)
		}
	}()
	o.OnEvent(ctx, ev)
}

package flow

import (
	"container/list"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/vm"
)

// DefaultConditionCacheSize bounds how many compiled conditions are kept.
const DefaultConditionCacheSize = 1024

type compiledCondition struct {
	expression string
	program    *vm.Program
	// refs are the identifier and member paths the expression reads.
	refs [][]string
}

// conditionEvaluator compiles edge conditions with expr and keeps the most
// recently used programs. It is safe for concurrent use.
type conditionEvaluator struct {
	limit int

	mu      sync.Mutex
	order   *list.List // front is most recently used
	entries map[string]*list.Element
}

func newConditionEvaluator(limit int) *conditionEvaluator {
	if limit < 1 {
		limit = 1
	}
	return &conditionEvaluator{
		limit:   limit,
		order:   list.New(),
		entries: make(map[string]*list.Element),
	}
}

func (c *conditionEvaluator) compile(expression string) (*compiledCondition, error) {
	c.mu.Lock()
	if el, ok := c.entries[expression]; ok {
		c.order.MoveToFront(el)
		c.mu.Unlock()
		return el.Value.(*compiledCondition), nil
	}
	c.mu.Unlock()

	// The environment is always a map, so identifiers resolve at run time and
	// missing ones evaluate to nil.
	program, err := expr.Compile(expression,
		expr.Env(map[string]any{}),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, err
	}
	cond := &compiledCondition{expression: expression, program: program, refs: references(program.Node())}

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[expression]; ok {
		c.order.MoveToFront(el)
		return el.Value.(*compiledCondition), nil
	}
	c.entries[expression] = c.order.PushFront(cond)
	for c.order.Len() > c.limit {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*compiledCondition).expression)
	}
	return cond, nil
}

// Len reports how many compiled conditions are cached.
func (c *conditionEvaluator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Evaluate runs expression against env and converts the result to a boolean.
// An expression that fails because it reads an undefined value is false, so
// `dealValue >= 1000` without a dealValue falls through to the default edge.
func (c *conditionEvaluator) Evaluate(expression string, env map[string]any) (bool, error) {
	cond, err := c.compile(expression)
	if err != nil {
		return false, fmt.Errorf("compile condition %q: %w", expression, err)
	}
	out, err := expr.Run(cond.program, env)
	if err != nil {
		if cond.readsUndefined(env) {
			return false, nil
		}
		return false, fmt.Errorf("evaluate condition %q: %w", expression, err)
	}
	return truthy(out), nil
}

func (c *compiledCondition) readsUndefined(env map[string]any) bool {
	scopes := []map[string]any{env}
	for _, ref := range c.refs {
		if v, ok := lookup(ref, scopes); !ok || v == nil {
			return true
		}
	}
	return false
}

type refCollector struct {
	seen map[string]bool
	refs [][]string
}

func (r *refCollector) Visit(node *ast.Node) {
	path, ok := memberPath(*node)
	if !ok {
		return
	}
	key := strings.Join(path, ".")
	if r.seen[key] {
		return
	}
	r.seen[key] = true
	r.refs = append(r.refs, path)
}

func references(node ast.Node) [][]string {
	c := &refCollector{seen: make(map[string]bool)}
	ast.Walk(&node, c)
	return c.refs
}

// memberPath returns the dotted path of an identifier or a chain of
// constant property accesses on one.
func memberPath(node ast.Node) ([]string, bool) {
	switch n := node.(type) {
	case *ast.IdentifierNode:
		return []string{n.Value}, true
	case *ast.ChainNode:
		return memberPath(n.Node)
	case *ast.MemberNode:
		prop, ok := n.Property.(*ast.StringNode)
		if !ok {
			return nil, false
		}
		parent, ok := memberPath(n.Node)
		if !ok {
			return nil, false
		}
		return append(append([]string(nil), parent...), prop.Value), true
	}
	return nil, false
}

var defaultConditions = newConditionEvaluator(DefaultConditionCacheSize)

// EvaluateCondition evaluates a single edge condition against variables and
// results the same way the executor does.
func EvaluateCondition(expression string, variables, results map[string]any) (bool, error) {
	return defaultConditions.Evaluate(expression, conditionEnv(variables, results))
}

// conditionEnv exposes results by node id, overlaid by variables, plus the
// two maps themselves for ids that are not valid identifiers.
func conditionEnv(variables, results map[string]any) map[string]any {
	env := make(map[string]any, len(variables)+len(results)+2)
	for k, v := range results {
		env[k] = v
	}
	for k, v := range variables {
		env[k] = v
	}
	env["variables"] = variables
	env["results"] = results
	return env
}

// truthy converts an evaluated value to a boolean.
func truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		return v != ""
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return false
}

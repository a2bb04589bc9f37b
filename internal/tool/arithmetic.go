package tool

import (
	"context"
	"fmt"
	"sync"
)

// Arithmetic is a minimal stateful tool: it evaluates basic binary
// operations and tracks a per-instance operation history. It exists to
// exercise the full create/execute/calc_reward/release protocol without
// external collaborators.
type Arithmetic struct {
	mu        sync.Mutex
	instances map[string]*arithState
}

type arithState struct {
	history []arithOp
	count   int
}

type arithOp struct {
	operation          string
	operand1, operand2 float64
	result             float64
}

// NewArithmetic returns an empty arithmetic tool.
func NewArithmetic() *Arithmetic {
	return &Arithmetic{instances: make(map[string]*arithState)}
}

// Name implements Tool.
func (a *Arithmetic) Name() string { return "arithmetic" }

// Create initializes an instance with an empty history. Creating an
// existing instance id resets it.
func (a *Arithmetic) Create(_ context.Context, instanceID string, _ map[string]interface{}) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.instances[instanceID] = &arithState{}
	return nil
}

// Execute evaluates params {operation, operand1, operand2}. Input problems
// (missing or unknown operation, non-numeric operands, division by zero,
// unknown instance) come back as error text with a -0.1 reward; the model
// is expected to read them and retry.
func (a *Arithmetic) Execute(_ context.Context, instanceID string, params map[string]interface{}) (Result, error) {
	operation, _ := params["operation"].(string)
	if operation == "" {
		return errResult("error: missing operation"), nil
	}
	operand1, ok1 := number(params, "operand1")
	operand2, ok2 := number(params, "operand2")
	if !ok1 || !ok2 {
		return errResult("error: operands must be numbers"), nil
	}

	var result float64
	switch operation {
	case "add":
		result = operand1 + operand2
	case "subtract":
		result = operand1 - operand2
	case "multiply":
		result = operand1 * operand2
	case "divide":
		if operand2 == 0 {
			return errResult("error: division by zero"), nil
		}
		result = operand1 / operand2
	default:
		return errResult(fmt.Sprintf("error: unsupported operation %q", operation)), nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.instances[instanceID]
	if !ok {
		return Result{
			Response:    fmt.Sprintf("error: unknown instance %s", instanceID),
			RewardScore: -0.1,
			Metrics:     map[string]interface{}{"error": "unknown instance"},
		}, nil
	}
	st.count++
	st.history = append(st.history, arithOp{operation: operation, operand1: operand1, operand2: operand2, result: result})

	return Result{
		Response:    fmt.Sprintf("result: %v %s %v = %v", operand1, operation, operand2, result),
		RewardScore: 0.1,
		Metrics: map[string]interface{}{
			"operation":       operation,
			"operand1":        operand1,
			"operand2":        operand2,
			"result":          result,
			"operation_count": st.count,
		},
	}, nil
}

// CalcReward starts from 1.0 and decays by 0.1 per operation beyond the
// first, clamped to [0, 1]. Unknown instances score 0.
func (a *Arithmetic) CalcReward(_ context.Context, instanceID string) (float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.instances[instanceID]
	if !ok {
		return 0.0, nil
	}
	reward := 1.0 - float64(st.count-1)*0.1
	if reward < 0 {
		reward = 0
	}
	if reward > 1 {
		reward = 1
	}
	return reward, nil
}

// Release implements Tool.
func (a *Arithmetic) Release(_ context.Context, instanceID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.instances, instanceID)
	return nil
}

func errResult(msg string) Result {
	return Result{Response: msg, RewardScore: -0.1, Metrics: map[string]interface{}{}}
}

// number extracts a numeric param. JSON numbers decode as float64; ints
// appear when params are built in-process.
func number(params map[string]interface{}, key string) (float64, bool) {
	switch v := params[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case nil:
		// Missing operands default to zero, matching the lenient parameter
		// handling callers rely on.
		return 0, true
	default:
		return 0, false
	}
}

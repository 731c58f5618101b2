package nodes

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/robertkrimen/otto"

	"github.com/lyzr/flow/common/registry"
	"github.com/lyzr/flow/common/workflow"
)

var errCodeHalt = errors.New("code execution interrupted")

// codeExecutor runs a user script in an embedded JavaScript interpreter.
// The sandbox has no module loading and no host I/O; its only bridges are
// the injected globals and a log function. Scripts are wrapped in a function
// so a top-level return works, and the returned value becomes the output
// items after normalization.
type codeExecutor struct {
	timeout      time.Duration
	payloadLimit int64
}

func newCodeExecutor(timeout time.Duration, payloadLimitMB int) *codeExecutor {
	return &codeExecutor{
		timeout:      timeout,
		payloadLimit: int64(payloadLimitMB) * 1024 * 1024,
	}
}

func (e *codeExecutor) Type() string { return TypeCode }

func (e *codeExecutor) Execute(rc registry.RunContext, node *workflow.Node, items []workflow.Item) (*registry.Result, error) {
	// Expressions are not resolved inside the script source; {{ }} would
	// collide with JavaScript object literals.
	params := node.Parameters
	if raw := rc.RawNode(node.Name); raw != nil {
		params = raw.Parameters
	}
	script := stringParam(params, "code", "")
	if script == "" {
		return registry.MainOutput(items), nil
	}

	if err := e.checkPayload("input", items); err != nil {
		return nil, err
	}

	vm := otto.New()
	vm.SetStackDepthLimit(1000)
	if err := e.installGlobals(rc, vm, items); err != nil {
		return nil, err
	}

	value, err := e.runScript(rc, vm, "(function() {\n"+script+"\n})();")
	if err != nil {
		return nil, err
	}
	exported, err := value.Export()
	if err != nil {
		return nil, fmt.Errorf("failed to read code result: %w", err)
	}

	out := normalizeCodeOutput(exported)
	if err := e.checkPayload("returned", out); err != nil {
		return nil, err
	}
	return registry.MainOutput(out), nil
}

func (e *codeExecutor) installGlobals(rc registry.RunContext, vm *otto.Otto, items []workflow.Item) error {
	itemValues := make([]interface{}, len(items))
	for i := range items {
		itemValues[i] = map[string]interface{}{"json": items[i].JSON}
	}
	firstJSON := map[string]interface{}{}
	if len(items) > 0 && items[0].JSON != nil {
		firstJSON = items[0].JSON
	}

	nodeOutputs := map[string]interface{}{}
	for name, outputs := range rc.NodeOutputs() {
		payloads := make([]interface{}, len(outputs))
		for i := range outputs {
			payloads[i] = outputs[i].JSON
		}
		entry := map[string]interface{}{"data": payloads}
		if len(outputs) > 0 {
			entry["json"] = outputs[0].JSON
		} else {
			entry["json"] = map[string]interface{}{}
		}
		nodeOutputs[name] = entry
	}

	logger := rc.Logger()
	logFn := func(call otto.FunctionCall) otto.Value {
		args := make([]interface{}, 0, len(call.ArgumentList))
		for _, arg := range call.ArgumentList {
			exported, _ := arg.Export()
			args = append(args, exported)
		}
		logger.Info("code node log", "args", args)
		return otto.UndefinedValue()
	}

	globals := map[string]interface{}{
		"items":      itemValues,
		"$input":     itemValues,
		"$json":      firstJSON,
		"$node":      nodeOutputs,
		"$execution": map[string]interface{}{"id": rc.ExecutionID(), "mode": rc.Mode()},
		"log":        logFn,
	}
	for name, value := range globals {
		if err := vm.Set(name, value); err != nil {
			return fmt.Errorf("failed to install sandbox global %s: %w", name, err)
		}
	}

	_, err := vm.Run(`
		console = { log: log, error: log, warn: log, info: log };
		function getItem(i) { return items[i]; }
		function newItem(json) { return { json: json || {} }; }
	`)
	return err
}

// runScript executes src with the interrupt channel armed so runaway scripts
// stop at the timeout or when the run context is cancelled.
func (e *codeExecutor) runScript(rc registry.RunContext, vm *otto.Otto, src string) (value otto.Value, err error) {
	vm.Interrupt = make(chan func(), 1)
	halt := func() {
		select {
		case vm.Interrupt <- func() { panic(errCodeHalt) }:
		default:
		}
	}

	timer := time.AfterFunc(e.timeout, halt)
	defer timer.Stop()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-rc.Context().Done():
			halt()
		case <-stop:
		}
	}()

	defer func() {
		if caught := recover(); caught != nil {
			if caught == errCodeHalt {
				if ctxErr := rc.Context().Err(); ctxErr != nil {
					err = ctxErr
					return
				}
				err = fmt.Errorf("code execution timed out after %s", e.timeout)
				return
			}
			panic(caught)
		}
	}()

	return vm.Run(src)
}

func (e *codeExecutor) checkPayload(direction string, items []workflow.Item) error {
	if e.payloadLimit <= 0 {
		return nil
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to measure %s payload: %w", direction, err)
	}
	if int64(len(raw)) > e.payloadLimit {
		return fmt.Errorf("%s payload exceeds the %dMB sandbox limit", direction, e.payloadLimit/(1024*1024))
	}
	return nil
}

// normalizeCodeOutput turns whatever the script returned into items: arrays
// element-wise, a lone value as a single item, objects without a json field
// wrapped as the payload itself, scalars under a value key.
func normalizeCodeOutput(exported interface{}) []workflow.Item {
	switch v := exported.(type) {
	case nil:
		return []workflow.Item{}
	case []interface{}:
		items := make([]workflow.Item, 0, len(v))
		for _, el := range v {
			items = append(items, itemFromScriptValue(el))
		}
		return items
	default:
		return []workflow.Item{itemFromScriptValue(v)}
	}
}

func itemFromScriptValue(v interface{}) workflow.Item {
	if m, ok := v.(map[string]interface{}); ok {
		if j, ok := m["json"].(map[string]interface{}); ok {
			return workflow.Item{JSON: j}
		}
		return workflow.Item{JSON: m}
	}
	item := workflow.NewItem()
	item.JSON["value"] = v
	return item
}

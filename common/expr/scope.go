package expr

import (
	"os"
	"strings"

	"github.com/lyzr/flow/common/workflow"
)

// Scope is the variable environment one expression evaluates against. The
// runner builds a scope per node execution (and per item during per-item
// resolution).
type Scope struct {
	// Current item's structured payload ($json)
	JSON map[string]interface{}

	// Full input sequence to the current node ($input)
	Input []workflow.Item

	// Other nodes' last main output, keyed by sanitized node name ($node)
	Nodes map[string]interface{}

	// Process environment snapshot ($env)
	Env map[string]string

	// Run metadata ($execution = {id, mode})
	Execution map[string]interface{}

	// Current index during per-item resolution ($itemIndex)
	ItemIndex int
}

// NewScope returns an empty scope with all containers initialized
func NewScope() *Scope {
	return &Scope{
		JSON:      map[string]interface{}{},
		Nodes:     map[string]interface{}{},
		Env:       map[string]string{},
		Execution: map[string]interface{}{},
	}
}

// AddNodeOutput registers another node's last main output under its
// sanitized name. `json` exposes the first item's payload, `data` the full
// sequence of payloads.
func (s *Scope) AddNodeOutput(nodeName string, items []workflow.Item) {
	first := map[string]interface{}{}
	if len(items) > 0 && items[0].JSON != nil {
		first = items[0].JSON
	}
	data := make([]interface{}, 0, len(items))
	for _, item := range items {
		payload := item.JSON
		if payload == nil {
			payload = map[string]interface{}{}
		}
		data = append(data, payload)
	}
	s.Nodes[SanitizeName(nodeName)] = map[string]interface{}{
		"json": first,
		"data": data,
	}
}

// SnapshotEnv captures the process environment for $env
func SnapshotEnv() map[string]string {
	env := map[string]string{}
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i > 0 {
			env[kv[:i]] = kv[i+1:]
		}
	}
	return env
}

// activation builds the CEL variable bindings
func (s *Scope) activation() map[string]interface{} {
	jsonVal := s.JSON
	if jsonVal == nil {
		jsonVal = map[string]interface{}{}
	}

	input := make([]interface{}, 0, len(s.Input))
	for _, item := range s.Input {
		payload := item.JSON
		if payload == nil {
			payload = map[string]interface{}{}
		}
		input = append(input, map[string]interface{}{"json": payload})
	}

	nodes := s.Nodes
	if nodes == nil {
		nodes = map[string]interface{}{}
	}
	env := s.Env
	if env == nil {
		env = map[string]string{}
	}
	execution := s.Execution
	if execution == nil {
		execution = map[string]interface{}{}
	}

	return map[string]interface{}{
		"json":      jsonVal,
		"input":     input,
		"node":      nodes,
		"env":       env,
		"execution": execution,
		"itemIndex": s.ItemIndex,
	}
}

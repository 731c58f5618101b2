package nodes

import (
	"time"

	"github.com/lyzr/flow/common/registry"
	"github.com/lyzr/flow/common/workflow"
)

// Registry keys for the built-in node types.
const (
	TypeStart          = "start"
	TypeWebhook        = "webhook"
	TypeCron           = "cron"
	TypeErrorTrigger   = "errorTrigger"
	TypeSet            = "set"
	TypeIf             = "if"
	TypeSwitch         = "switch"
	TypeMerge          = "merge"
	TypeSplitInBatches = "splitInBatches"
	TypeWait           = "wait"
	TypeHTTPRequest    = "httpRequest"
	TypeCode           = "code"
	TypeLLMChat        = "llmChat"
	TypeAIAgent        = "aiAgent"
)

// Options carries the engine policy and external dependencies the built-in
// executors need. Zero values get sane defaults from DefaultOptions.
type Options struct {
	MaxWait            time.Duration
	CodeTimeout        time.Duration
	CodePayloadLimitMB int
	HTTPTimeout        time.Duration
	Guard              *Guard
	LLM                LLMOptions
}

func DefaultOptions() Options {
	return Options{
		MaxWait:            5 * time.Minute,
		CodeTimeout:        5 * time.Second,
		CodePayloadLimitMB: 128,
		HTTPTimeout:        30 * time.Second,
		Guard:              NewGuard(true, nil),
		LLM:                LLMOptions{Model: "gemini-2.0-flash"},
	}
}

func (o Options) withDefaults() Options {
	defaults := DefaultOptions()
	if o.MaxWait <= 0 {
		o.MaxWait = defaults.MaxWait
	}
	if o.CodeTimeout <= 0 {
		o.CodeTimeout = defaults.CodeTimeout
	}
	if o.CodePayloadLimitMB <= 0 {
		o.CodePayloadLimitMB = defaults.CodePayloadLimitMB
	}
	if o.HTTPTimeout <= 0 {
		o.HTTPTimeout = defaults.HTTPTimeout
	}
	if o.Guard == nil {
		o.Guard = defaults.Guard
	}
	if o.LLM.Model == "" {
		o.LLM.Model = defaults.LLM.Model
	}
	return o
}

// RegisterAll installs every built-in node type into the registry.
func RegisterAll(r *registry.Registry, opts Options) error {
	opts = opts.withDefaults()

	entries := []struct {
		desc    registry.Descriptor
		factory registry.Factory
	}{
		{
			registry.Descriptor{
				Type: TypeStart, DisplayName: "Start",
				Description: "Entry point for manually triggered runs",
				InputCount:  0, Outputs: []string{workflow.PortMain},
			},
			newTrigger(TypeStart),
		},
		{
			registry.Descriptor{
				Type: TypeWebhook, DisplayName: "Webhook",
				Description: "Entry point receiving an HTTP payload",
				InputCount:  0, Outputs: []string{workflow.PortMain},
				Defaults: map[string]interface{}{"path": "", "responseMode": "onReceived"},
			},
			newTrigger(TypeWebhook),
		},
		{
			registry.Descriptor{
				Type: TypeCron, DisplayName: "Cron",
				Description: "Entry point fired on a schedule",
				InputCount:  0, Outputs: []string{workflow.PortMain},
				Defaults: map[string]interface{}{"expression": "0 * * * *"},
			},
			newTrigger(TypeCron),
		},
		{
			registry.Descriptor{
				Type: TypeErrorTrigger, DisplayName: "Error Trigger",
				Description: "Entry point for error-handler workflows",
				InputCount:  0, Outputs: []string{workflow.PortMain},
			},
			newTrigger(TypeErrorTrigger),
		},
		{
			registry.Descriptor{
				Type: TypeSet, DisplayName: "Set",
				Description: "Assign, merge, delete or rename item fields",
				InputCount:  1, Outputs: []string{workflow.PortMain},
				Defaults: map[string]interface{}{"keepOnlySet": false, "values": []interface{}{}},
			},
			func() registry.Executor { return &setExecutor{} },
		},
		{
			registry.Descriptor{
				Type: TypeIf, DisplayName: "If",
				Description: "Route items by condition",
				InputCount:  1, Outputs: []string{PortTrue, PortFalse},
				Defaults: map[string]interface{}{"combineOperation": "all", "conditions": []interface{}{}},
			},
			func() registry.Executor { return &ifExecutor{} },
		},
		{
			registry.Descriptor{
				Type: TypeSwitch, DisplayName: "Switch",
				Description: "Route items across numbered outputs",
				InputCount:  1, Outputs: []string{OutputPort(0)},
				Defaults: map[string]interface{}{"mode": "rules", "rules": []interface{}{}, "fallbackOutput": -1},
			},
			func() registry.Executor { return &switchExecutor{} },
		},
		{
			registry.Descriptor{
				Type: TypeMerge, DisplayName: "Merge",
				Description: "Join branches into one stream",
				InputCount:  registry.InputsFromConnections, Outputs: []string{workflow.PortMain},
				Defaults: map[string]interface{}{"mode": "append"},
			},
			func() registry.Executor { return &mergeExecutor{} },
		},
		{
			registry.Descriptor{
				Type: TypeSplitInBatches, DisplayName: "Split In Batches",
				Description: "Iterate items in fixed-size batches",
				InputCount:  1, Outputs: []string{workflow.PortLoop, workflow.PortDone},
				Defaults: map[string]interface{}{"batchSize": 10},
			},
			func() registry.Executor { return &splitInBatchesExecutor{} },
		},
		{
			registry.Descriptor{
				Type: TypeWait, DisplayName: "Wait",
				Description: "Pause the run for a bounded duration",
				InputCount:  1, Outputs: []string{workflow.PortMain},
				Defaults: map[string]interface{}{"amount": 1, "unit": "seconds"},
			},
			func() registry.Executor { return &waitExecutor{maxWait: opts.MaxWait} },
		},
		{
			registry.Descriptor{
				Type: TypeHTTPRequest, DisplayName: "HTTP Request",
				Description: "Call an external HTTP endpoint per item",
				InputCount:  1, Outputs: []string{workflow.PortMain},
				Defaults: map[string]interface{}{"method": "GET", "responseType": "json"},
			},
			func() registry.Executor { return newHTTPExecutor(opts.HTTPTimeout, opts.Guard) },
		},
		{
			registry.Descriptor{
				Type: TypeCode, DisplayName: "Code",
				Description: "Run a JavaScript snippet over the items",
				InputCount:  1, Outputs: []string{workflow.PortMain},
				Defaults: map[string]interface{}{"code": "return items;"},
			},
			func() registry.Executor { return newCodeExecutor(opts.CodeTimeout, opts.CodePayloadLimitMB) },
		},
		{
			registry.Descriptor{
				Type: TypeLLMChat, DisplayName: "LLM Chat",
				Description: "Send a prompt to the configured chat model",
				InputCount:  1, Outputs: []string{workflow.PortMain},
				Defaults: map[string]interface{}{"model": opts.LLM.Model, "temperature": 0},
			},
			func() registry.Executor { return newLLMChatExecutor(opts.LLM) },
		},
		{
			registry.Descriptor{
				Type: TypeAIAgent, DisplayName: "AI Agent",
				Description: "Run a task with item context through the chat model",
				InputCount:  1, Outputs: []string{workflow.PortMain},
				Defaults: map[string]interface{}{"model": opts.LLM.Model},
			},
			func() registry.Executor { return newAIAgentExecutor(opts.LLM) },
		},
	}

	for _, entry := range entries {
		if err := r.Register(entry.desc, entry.factory); err != nil {
			return err
		}
	}
	return nil
}

package nodes

import (
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lyzr/flow/common/registry"
	"github.com/lyzr/flow/common/workflow"
)

// LLMOptions configures the chat-completion client shared by the LLM node
// types. An empty APIKey leaves the nodes registered but failing at
// execution time with a clear message.
type LLMOptions struct {
	APIKey  string
	BaseURL string
	Model   string
}

func (o LLMOptions) client() *openai.Client {
	cfg := openai.DefaultConfig(o.APIKey)
	if o.BaseURL != "" {
		cfg.BaseURL = o.BaseURL
	}
	return openai.NewClientWithConfig(cfg)
}

// llmChatExecutor sends one chat completion per input item. The prompt is
// re-resolved per item so it can interpolate $json.
type llmChatExecutor struct {
	opts   LLMOptions
	client *openai.Client
}

func newLLMChatExecutor(opts LLMOptions) *llmChatExecutor {
	return &llmChatExecutor{opts: opts, client: opts.client()}
}

func (e *llmChatExecutor) Type() string { return TypeLLMChat }

func (e *llmChatExecutor) Execute(rc registry.RunContext, node *workflow.Node, items []workflow.Item) (*registry.Result, error) {
	if e.opts.APIKey == "" {
		return nil, fmt.Errorf("llmChat node requires an API key, set WORKFLOW_LLM_API_KEY")
	}
	inputs := items
	if len(inputs) == 0 {
		inputs = []workflow.Item{workflow.NewItem()}
	}
	out := make([]workflow.Item, 0, len(inputs))
	for i := range inputs {
		params := rc.ResolveForItem(node.Name, inputs, i)
		prompt := stringParam(params, "prompt", "")
		if prompt == "" {
			return nil, fmt.Errorf("llmChat node requires a prompt parameter")
		}
		item, err := e.complete(rc, params, prompt, stringParam(params, "systemPrompt", ""))
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return registry.MainOutput(out), nil
}

func (e *llmChatExecutor) complete(rc registry.RunContext, params map[string]interface{}, prompt, system string) (workflow.Item, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	req := openai.ChatCompletionRequest{
		Model:       stringParam(params, "model", e.opts.Model),
		Messages:    messages,
		Temperature: float32(floatParam(params, "temperature", 0)),
	}
	resp, err := e.client.CreateChatCompletion(rc.Context(), req)
	if err != nil {
		return workflow.Item{}, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return workflow.Item{}, fmt.Errorf("chat completion returned no choices")
	}

	item := workflow.NewItem()
	item.JSON["response"] = resp.Choices[0].Message.Content
	item.JSON["model"] = resp.Model
	item.JSON["usage"] = map[string]interface{}{
		"promptTokens":     resp.Usage.PromptTokens,
		"completionTokens": resp.Usage.CompletionTokens,
		"totalTokens":      resp.Usage.TotalTokens,
	}
	return item, nil
}

// aiAgentExecutor is llmChat with the item payload folded into the request:
// the instructions parameter becomes the system message and the user message
// carries the task plus the current item as JSON context.
type aiAgentExecutor struct {
	chat *llmChatExecutor
}

func newAIAgentExecutor(opts LLMOptions) *aiAgentExecutor {
	return &aiAgentExecutor{chat: newLLMChatExecutor(opts)}
}

func (e *aiAgentExecutor) Type() string { return TypeAIAgent }

func (e *aiAgentExecutor) Execute(rc registry.RunContext, node *workflow.Node, items []workflow.Item) (*registry.Result, error) {
	if e.chat.opts.APIKey == "" {
		return nil, fmt.Errorf("aiAgent node requires an API key, set WORKFLOW_LLM_API_KEY")
	}
	inputs := items
	if len(inputs) == 0 {
		inputs = []workflow.Item{workflow.NewItem()}
	}
	out := make([]workflow.Item, 0, len(inputs))
	for i := range inputs {
		params := rc.ResolveForItem(node.Name, inputs, i)
		task := stringParam(params, "task", "")
		if task == "" {
			return nil, fmt.Errorf("aiAgent node requires a task parameter")
		}
		instructions := stringParam(params, "instructions",
			"You are a workflow automation agent. Complete the task using the provided item context. Respond with the result only.")

		prompt := task
		if context, err := json.Marshal(inputs[i].JSON); err == nil && string(context) != "{}" {
			prompt = fmt.Sprintf("%s\n\nItem context:\n%s", task, context)
		}
		item, err := e.chat.complete(rc, params, prompt, instructions)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return registry.MainOutput(out), nil
}

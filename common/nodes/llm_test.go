package nodes

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lyzr/flow/common/workflow"
)

// fakeChatServer serves an OpenAI-compatible chat completions endpoint and
// records the prompts it received.
func fakeChatServer(t *testing.T, reply string) (*httptest.Server, *[]map[string]interface{}) {
	t.Helper()
	var requests []map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode chat request: %v", err)
		}
		requests = append(requests, req)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":    "chatcmpl-test",
			"model": "test-model",
			"choices": []map[string]interface{}{
				{"index": 0, "message": map[string]interface{}{"role": "assistant", "content": reply}},
			},
			"usage": map[string]interface{}{
				"prompt_tokens": 12, "completion_tokens": 4, "total_tokens": 16,
			},
		})
	}))
	return server, &requests
}

// TestLLMChatPerItem verifies one completion per item with the prompt
// templated from the payload, and the usage fields on the output.
func TestLLMChatPerItem(t *testing.T) {
	server, requests := fakeChatServer(t, "summary text")
	defer server.Close()

	rc := newFakeRunContext(t)
	node := rc.addNode("Summarize", TypeLLMChat, map[string]interface{}{
		"prompt":       "Summarize: {{ $json.text }}",
		"systemPrompt": "You are terse.",
	})

	executor := newLLMChatExecutor(LLMOptions{APIKey: "test-key", BaseURL: server.URL, Model: "test-model"})
	in := []workflow.Item{itemWith(t, "text", "alpha"), itemWith(t, "text", "beta")}
	result, err := executor.Execute(rc, node, in)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if len(*requests) != 2 {
		t.Fatalf("Expected 2 completions, got %d", len(*requests))
	}
	firstMessages := (*requests)[0]["messages"].([]interface{})
	if len(firstMessages) != 2 {
		t.Fatalf("Expected system+user messages, got %d", len(firstMessages))
	}
	user := firstMessages[1].(map[string]interface{})
	if user["content"] != "Summarize: alpha" {
		t.Errorf("Expected templated prompt, got %v", user["content"])
	}

	items := result.Outputs[workflow.PortMain].Items
	if len(items) != 2 {
		t.Fatalf("Expected 2 output items, got %d", len(items))
	}
	if items[0].JSON["response"] != "summary text" {
		t.Errorf("Expected model reply on the item, got %v", items[0].JSON["response"])
	}
	usage, ok := items[0].JSON["usage"].(map[string]interface{})
	if !ok || usage["totalTokens"] != 16 {
		t.Errorf("Expected usage totals, got %v", items[0].JSON["usage"])
	}
}

// TestLLMChatRequiresConfiguration verifies a missing key or prompt fails
// cleanly.
func TestLLMChatRequiresConfiguration(t *testing.T) {
	rc := newFakeRunContext(t)
	node := rc.addNode("Summarize", TypeLLMChat, map[string]interface{}{"prompt": "hi"})

	executor := newLLMChatExecutor(LLMOptions{})
	if _, err := executor.Execute(rc, node, nil); err == nil || !strings.Contains(err.Error(), "API key") {
		t.Errorf("Expected missing-key error, got %v", err)
	}

	blank := rc.addNode("Blank", TypeLLMChat, map[string]interface{}{})
	withKey := newLLMChatExecutor(LLMOptions{APIKey: "k"})
	if _, err := withKey.Execute(rc, blank, nil); err == nil || !strings.Contains(err.Error(), "prompt") {
		t.Errorf("Expected missing-prompt error, got %v", err)
	}
}

// TestAIAgentFoldsItemContext verifies the agent sends the task plus the
// item payload and uses the instructions as the system message.
func TestAIAgentFoldsItemContext(t *testing.T) {
	server, requests := fakeChatServer(t, "done")
	defer server.Close()

	rc := newFakeRunContext(t)
	node := rc.addNode("Agent", TypeAIAgent, map[string]interface{}{
		"task":         "Classify the ticket",
		"instructions": "You label tickets.",
	})

	executor := newAIAgentExecutor(LLMOptions{APIKey: "test-key", BaseURL: server.URL, Model: "test-model"})
	result, err := executor.Execute(rc, node, []workflow.Item{itemWith(t, "subject", "refund")})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if len(*requests) != 1 {
		t.Fatalf("Expected 1 completion, got %d", len(*requests))
	}
	messages := (*requests)[0]["messages"].([]interface{})
	system := messages[0].(map[string]interface{})
	if system["content"] != "You label tickets." {
		t.Errorf("Expected instructions as system message, got %v", system["content"])
	}
	user := messages[1].(map[string]interface{})
	content, _ := user["content"].(string)
	if !strings.Contains(content, "Classify the ticket") || !strings.Contains(content, "refund") {
		t.Errorf("Expected task and item context in the user message, got %q", content)
	}

	if result.Outputs[workflow.PortMain].Items[0].JSON["response"] != "done" {
		t.Errorf("Expected agent reply, got %v", result.Outputs[workflow.PortMain].Items[0].JSON)
	}
}

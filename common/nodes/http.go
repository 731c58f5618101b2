package nodes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lyzr/flow/common/registry"
	"github.com/lyzr/flow/common/workflow"
)

// httpExecutor performs one outbound call per input item (or a single call
// when the input is empty). Parameters are re-resolved per item so the URL
// and body can be templated from $json.
type httpExecutor struct {
	client *http.Client
	guard  *Guard
}

func newHTTPExecutor(timeout time.Duration, guard *Guard) *httpExecutor {
	return &httpExecutor{
		client: &http.Client{Timeout: timeout},
		guard:  guard,
	}
}

func (e *httpExecutor) Type() string { return TypeHTTPRequest }

func (e *httpExecutor) Execute(rc registry.RunContext, node *workflow.Node, items []workflow.Item) (*registry.Result, error) {
	inputs := items
	if len(inputs) == 0 {
		inputs = []workflow.Item{workflow.NewItem()}
	}
	out := make([]workflow.Item, 0, len(inputs))
	for i := range inputs {
		params := rc.ResolveForItem(node.Name, inputs, i)
		item, err := e.call(rc, params)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return registry.MainOutput(out), nil
}

func (e *httpExecutor) call(rc registry.RunContext, params map[string]interface{}) (workflow.Item, error) {
	rawURL := stringParam(params, "url", "")
	if rawURL == "" {
		return workflow.Item{}, fmt.Errorf("httpRequest node requires a url parameter")
	}
	if err := e.guard.Validate(rawURL); err != nil {
		return workflow.Item{}, err
	}

	method := strings.ToUpper(stringParam(params, "method", "GET"))
	body, contentType, err := requestBody(method, params["body"])
	if err != nil {
		return workflow.Item{}, err
	}

	req, err := http.NewRequestWithContext(rc.Context(), method, rawURL, body)
	if err != nil {
		return workflow.Item{}, fmt.Errorf("failed to build request: %w", err)
	}
	for _, pair := range headerPairs(params["headers"]) {
		req.Header.Set(pair[0], pair[1])
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return workflow.Item{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return workflow.Item{}, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 && !boolParam(params, "ignoreResponseCode", false) {
		return workflow.Item{}, fmt.Errorf("HTTP request failed with status code %d", resp.StatusCode)
	}

	respHeaders := make(map[string]interface{}, len(resp.Header))
	for key := range resp.Header {
		respHeaders[key] = resp.Header.Get(key)
	}

	item := workflow.NewItem()
	item.JSON["statusCode"] = resp.StatusCode
	item.JSON["headers"] = respHeaders

	switch stringParam(params, "responseType", "json") {
	case "text":
		item.JSON["body"] = string(data)
	case "binary-metadata":
		mimeType := resp.Header.Get("Content-Type")
		item.JSON["body"] = map[string]interface{}{
			"mimeType": mimeType,
			"size":     len(data),
		}
		item.Binary = map[string]workflow.BinaryMeta{
			"data": {MimeType: mimeType, Size: int64(len(data))},
		}
	default:
		var decoded interface{}
		if err := json.Unmarshal(data, &decoded); err != nil {
			item.JSON["body"] = string(data)
		} else {
			item.JSON["body"] = decoded
		}
	}
	return item, nil
}

func requestBody(method string, raw interface{}) (io.Reader, string, error) {
	if raw == nil || method == http.MethodGet || method == http.MethodHead {
		return nil, "", nil
	}
	switch b := raw.(type) {
	case string:
		return strings.NewReader(b), "", nil
	default:
		encoded, err := json.Marshal(b)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode request body: %w", err)
		}
		return bytes.NewReader(encoded), "application/json", nil
	}
}

// headerPairs accepts both header shapes: a list of {name, value} objects
// and a plain map.
func headerPairs(raw interface{}) [][2]string {
	switch h := raw.(type) {
	case []interface{}:
		pairs := make([][2]string, 0, len(h))
		for _, el := range h {
			entry, ok := el.(map[string]interface{})
			if !ok {
				continue
			}
			name := stringParam(entry, "name", "")
			if name == "" {
				continue
			}
			pairs = append(pairs, [2]string{name, stringParam(entry, "value", "")})
		}
		return pairs
	case map[string]interface{}:
		pairs := make([][2]string, 0, len(h))
		for name := range h {
			pairs = append(pairs, [2]string{name, stringParam(h, name, "")})
		}
		return pairs
	default:
		return nil
	}
}

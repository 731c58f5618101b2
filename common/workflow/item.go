package workflow

// Item is the atomic value flowing on every edge: a structured JSON payload
// plus optional opaque binary attachments. Edges carry ordered slices of items.
type Item struct {
	JSON   map[string]interface{} `json:"json"`
	Binary map[string]BinaryMeta  `json:"binary,omitempty"`
}

// BinaryMeta describes a binary attachment. The engine never interprets the
// payload; it only carries the metadata along.
type BinaryMeta struct {
	MimeType string `json:"mimeType"`
	FileName string `json:"fileName,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Data     string `json:"data,omitempty"` // base64, optional
}

// NewItem returns an item with an empty JSON payload
func NewItem() Item {
	return Item{JSON: map[string]interface{}{}}
}

// ItemOf returns an item wrapping the given payload
func ItemOf(payload map[string]interface{}) Item {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return Item{JSON: payload}
}

// PortValue is the value produced on one output port: either a sequence of
// items or the dead-branch marker. Dead is distinct from an empty sequence:
// an empty sequence means "the branch succeeded but carried no data", while
// Dead means "downstream single-input nodes must not execute".
type PortValue struct {
	Items []Item `json:"items,omitempty"`
	Dead  bool   `json:"dead,omitempty"`
}

// Output wraps items into a live port value
func Output(items []Item) PortValue {
	return PortValue{Items: items}
}

// NoOutput returns the dead-branch marker
func NoOutput() PortValue {
	return PortValue{Dead: true}
}

// IsDead reports whether this port killed its branch
func (p PortValue) IsDead() bool {
	return p.Dead
}

// IsEmpty reports a live port that carried no items
func (p PortValue) IsEmpty() bool {
	return !p.Dead && len(p.Items) == 0
}

// CloneItems deep-copies a slice of items so downstream mutation cannot
// corrupt recorded node outputs.
func CloneItems(items []Item) []Item {
	if items == nil {
		return nil
	}
	out := make([]Item, len(items))
	for i, item := range items {
		out[i] = Item{JSON: CloneJSONMap(item.JSON)}
		if item.Binary != nil {
			out[i].Binary = make(map[string]BinaryMeta, len(item.Binary))
			for k, v := range item.Binary {
				out[i].Binary[k] = v
			}
		}
	}
	return out
}

// CloneJSONMap deep-copies a JSON object tree
func CloneJSONMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return CloneJSONMap(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, el := range val {
			out[i] = cloneValue(el)
		}
		return out
	default:
		// Scalars are value-typed already
		return v
	}
}

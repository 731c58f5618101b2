package workflow

// Well-known port names. Any other port name is node-defined (true/false,
// output0..N). Traversing PortLoop bumps the run index so loop iterations get
// independent join buffers.
const (
	PortMain = "main"
	PortLoop = "loop"
	PortDone = "done"
)

// Execution modes accepted by the runner
const (
	ModeManual  = "manual"
	ModeWebhook = "webhook"
	ModeCron    = "cron"
)

// Workflow is an immutable description of a DAG of typed nodes. Cycles are
// permitted: looping is driven through loop ports, not rejected up front.
type Workflow struct {
	ID          string       `json:"id,omitempty"`
	Name        string       `json:"name"`
	Active      bool         `json:"active,omitempty"`
	Nodes       []Node       `json:"nodes"`
	Connections []Connection `json:"connections"`

	// Optional workflow invoked with an errorTrigger start when a run of
	// this workflow finishes with errors
	ErrorWorkflowID string `json:"errorWorkflowId,omitempty"`
}

// Node is one typed step in a workflow
type Node struct {
	Name       string                 `json:"name"`
	Type       string                 `json:"type"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
	Position   []float64              `json:"position,omitempty"` // UI only

	// Per-node execution policy
	Disabled       bool `json:"disabled,omitempty"`
	ContinueOnFail bool `json:"continueOnFail,omitempty"`
	RetryOnFail    int  `json:"retryOnFail,omitempty"` // additional attempts, 0..10
	RetryDelay     int  `json:"retryDelay,omitempty"`  // milliseconds between attempts

	// Fixed items substituting for execution during development
	PinnedData []Item `json:"pinnedData,omitempty"`
}

// Connection is one directed edge between two node ports
type Connection struct {
	SourceNode   string `json:"sourceNode"`
	SourceOutput string `json:"sourceOutput,omitempty"`
	TargetNode   string `json:"targetNode"`
	TargetInput  string `json:"targetInput,omitempty"`
}

// Normalize applies the default "main" port names
func (c *Connection) Normalize() {
	if c.SourceOutput == "" {
		c.SourceOutput = PortMain
	}
	if c.TargetInput == "" {
		c.TargetInput = PortMain
	}
}

// Normalize applies port defaults across all connections
func (w *Workflow) Normalize() {
	for i := range w.Connections {
		w.Connections[i].Normalize()
	}
}

// NodeByName returns the named node, or nil
func (w *Workflow) NodeByName(name string) *Node {
	for i := range w.Nodes {
		if w.Nodes[i].Name == name {
			return &w.Nodes[i]
		}
	}
	return nil
}

// HasNode reports whether the named node exists
func (w *Workflow) HasNode(name string) bool {
	return w.NodeByName(name) != nil
}

// NodesOfType returns every node of the given registry type, in declaration
// order. Boundary adapters use this to locate webhook and cron entry nodes.
func (w *Workflow) NodesOfType(nodeType string) []*Node {
	var out []*Node
	for i := range w.Nodes {
		if w.Nodes[i].Type == nodeType {
			out = append(out, &w.Nodes[i])
		}
	}
	return out
}

// ConnectionsFrom returns all edges leaving (node, output), in declaration
// order. Fan-out enqueues downstream jobs in exactly this order.
func (w *Workflow) ConnectionsFrom(node, output string) []Connection {
	var out []Connection
	for _, c := range w.Connections {
		c.Normalize()
		if c.SourceNode == node && c.SourceOutput == output {
			out = append(out, c)
		}
	}
	return out
}

// ConnectionsInto returns all edges terminating on node, in declaration order
func (w *Workflow) ConnectionsInto(node string) []Connection {
	var out []Connection
	for _, c := range w.Connections {
		c.Normalize()
		if c.TargetNode == node {
			out = append(out, c)
		}
	}
	return out
}

// UniqueInputEdges counts the distinct (sourceNode, sourceOutput) pairs
// feeding node. Multi-input readiness compares delivered keys against this
// count, so duplicate edges from the same upstream port overwrite rather
// than double-count.
func (w *Workflow) UniqueInputEdges(node string) int {
	seen := map[string]bool{}
	for _, c := range w.ConnectionsInto(node) {
		seen[c.SourceNode+":"+c.SourceOutput] = true
	}
	return len(seen)
}

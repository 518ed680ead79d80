// Package bpmn lowers a process graph into the BPMN 2.0 XML dialect
// (with Flowable extensions) understood by the process runtime.
package bpmn

import (
	"encoding/xml"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/meikuraledutech/procflow"
)

const (
	modelNS    = "http://www.omg.org/spec/BPMN/20100524/MODEL"
	flowableNS = "http://flowable.org/bpmn"
	xsiNS      = "http://www.w3.org/2001/XMLSchema-instance"
	targetNS   = "http://www.flowable.org/processdef"

	// DefaultDelegateExpression binds AI agent steps to the runtime's agent delegate.
	DefaultDelegateExpression = "${aiAgentDelegate}"
)

var (
	ErrUnsupportedNode = errors.New("bpmn: node type has no process element")
	ErrDanglingFlow    = errors.New("bpmn: sequence flow references a missing element")
	ErrDuplicateID     = errors.New("bpmn: element id already emitted")
)

// Options tune a compilation. The zero value is the lenient default.
type Options struct {
	// Strict fails instead of omitting unsupported nodes, elements whose id
	// collides with one already emitted and flows whose endpoints were not
	// emitted.
	Strict bool
	// LowerConditions emits edge conditions as conditionExpression children
	// of their sequence flows. Without it conditions are reported as dropped.
	LowerConditions bool
	// DelegateExpression overrides DefaultDelegateExpression.
	DelegateExpression string
	// Now stamps the process id; defaults to time.Now.
	Now func() time.Time
}

// Result is a compiled process definition.
type Result struct {
	ProcessID string `json:"processId"`
	XML       string `json:"xml"`
	// OmittedNodes lists node ids for which no element was emitted, either
	// because the type has no element or because the id collided.
	OmittedNodes []string `json:"omittedNodes,omitempty"`
	// OmittedFlows lists edge ids dropped because an endpoint was not emitted
	// or because the flow id collided.
	OmittedFlows []string `json:"omittedFlows,omitempty"`
	// DroppedConditions lists edge ids whose condition was not lowered.
	DroppedConditions []string `json:"droppedConditions,omitempty"`
}

// Lossless reports whether every node, edge and condition made it into the document.
func (r *Result) Lossless() bool {
	return len(r.OmittedNodes) == 0 && len(r.OmittedFlows) == 0 && len(r.DroppedConditions) == 0
}

var nonAlnum = regexp.MustCompile(`[^A-Za-z0-9]`)

// SanitizeName strips every character outside [A-Za-z0-9].
func SanitizeName(name string) string {
	return nonAlnum.ReplaceAllString(name, "")
}

// ProcessID returns "Process_{sanitized name}_{unix millis}".
func ProcessID(name string, now time.Time) string {
	return fmt.Sprintf("Process_%s_%d", SanitizeName(name), now.UnixMilli())
}

// ElementID turns an editor id into an XML id; hyphens are not allowed.
// Distinct ids can map to the same element id ("a-b" and "a_b"); Compile
// emits only the first of them.
func ElementID(id string) string {
	return strings.ReplaceAll(id, "-", "_")
}

// Compile lowers nodes and edges into a process definition named processName.
// Nodes are emitted in order, then one sequence flow per edge.
func Compile(nodes []procflow.Node, edges []procflow.Edge, processName string, opts Options) (*Result, error) {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	delegate := opts.DelegateExpression
	if delegate == "" {
		delegate = DefaultDelegateExpression
	}

	res := &Result{ProcessID: ProcessID(processName, now())}
	proc := process{
		ID:           res.ProcessID,
		Name:         processName,
		IsExecutable: true,
	}

	emitted := make(map[string]bool, len(nodes))
	// taken maps element ids to the editor id that claimed them.
	taken := make(map[string]string, len(nodes)+len(edges))
	for _, n := range nodes {
		if owner, dup := taken[ElementID(n.ID)]; dup {
			if opts.Strict {
				return nil, fmt.Errorf("%w: node %s collides with %s", ErrDuplicateID, n.ID, owner)
			}
			res.OmittedNodes = append(res.OmittedNodes, n.ID)
			continue
		}
		el, err := lowerNode(n, delegate)
		if err != nil {
			if opts.Strict {
				return nil, err
			}
			res.OmittedNodes = append(res.OmittedNodes, n.ID)
			continue
		}
		proc.Elements = append(proc.Elements, el)
		emitted[n.ID] = true
		taken[ElementID(n.ID)] = n.ID
	}

	for _, e := range edges {
		if !emitted[e.Source] || !emitted[e.Target] {
			if opts.Strict {
				return nil, fmt.Errorf("%w: edge %s (%s -> %s)", ErrDanglingFlow, e.ID, e.Source, e.Target)
			}
			res.OmittedFlows = append(res.OmittedFlows, e.ID)
			continue
		}
		if owner, dup := taken[ElementID(e.ID)]; dup {
			if opts.Strict {
				return nil, fmt.Errorf("%w: edge %s collides with %s", ErrDuplicateID, e.ID, owner)
			}
			res.OmittedFlows = append(res.OmittedFlows, e.ID)
			continue
		}
		taken[ElementID(e.ID)] = e.ID
		flow := sequenceFlow{
			ID:        ElementID(e.ID),
			Name:      e.Label,
			SourceRef: ElementID(e.Source),
			TargetRef: ElementID(e.Target),
		}
		if e.Data.Condition != "" {
			if opts.LowerConditions {
				flow.Condition = &conditionExpression{Type: "tFormalExpression", Body: e.Data.Condition}
			} else {
				res.DroppedConditions = append(res.DroppedConditions, e.ID)
			}
		}
		proc.Elements = append(proc.Elements, flow)
	}

	doc := definitions{
		Xmlns:           modelNS,
		XmlnsFlowable:   flowableNS,
		XmlnsXsi:        xsiNS,
		TargetNamespace: targetNS,
		Process:         proc,
	}
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("bpmn: marshal: %w", err)
	}
	res.XML = xml.Header + string(out) + "\n"
	return res, nil
}

// lowerNode dispatches on the node type. Every known type is listed; types
// without a process element return ErrUnsupportedNode.
func lowerNode(n procflow.Node, delegate string) (any, error) {
	id := ElementID(n.ID)
	switch n.Type {
	case procflow.NodeStart:
		return startEvent{ID: id, Name: n.Data.Label, FormKey: n.ConfigString("formKey")}, nil
	case procflow.NodeEnd:
		return endEvent{ID: id, Name: n.Data.Label}, nil
	case procflow.NodeTask, procflow.NodeUserTask:
		t := userTask{
			ID:       id,
			Name:     n.Data.Label,
			Assignee: n.ConfigString("assignee"),
			FormKey:  n.ConfigString("formKey"),
		}
		if review, _ := n.Data.Config["isReview"].(bool); review {
			t.Category = "review"
		}
		return t, nil
	case procflow.NodeAIAgent:
		return serviceTask{
			ID:                 id,
			Name:               n.Data.Label,
			DelegateExpression: delegate,
			Extensions: &extensionElements{Fields: []field{
				{Name: "systemPrompt", Value: cdata{Text: n.ConfigString("systemPrompt")}},
				{Name: "inputVariableName", Value: cdata{Text: n.ConfigString("inputVariableName")}},
				{Name: "outputVariableName", Value: cdata{Text: n.ConfigString("outputVariableName")}},
			}},
		}, nil
	case procflow.NodeGateway:
		return exclusiveGateway{ID: id, Name: n.Data.Label}, nil
	case procflow.NodeServiceTask, procflow.NodeEmail, procflow.NodeTimer,
		procflow.NodeRulesEngine, procflow.NodeDynamicRouter:
		return nil, fmt.Errorf("%w: %s (%s)", ErrUnsupportedNode, n.ID, n.Type)
	default:
		return nil, fmt.Errorf("%w: %s: %w %q", ErrUnsupportedNode, n.ID, procflow.ErrUnknownNodeType, n.Type)
	}
}

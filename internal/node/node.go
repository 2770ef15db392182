// Package node builds the graph's vertex set from the element inventory and
// derives the setpoint → downstream edge structure.
package node

import (
	"context"
	"fmt"
	"regexp"

	"github.com/RoaringBitmap/roaring"

	"github.com/JeffersonLab/ced2gnn/api"
	"github.com/JeffersonLab/ced2gnn/internal/ced"
	"github.com/JeffersonLab/ced2gnn/internal/mya"
)

// Role classifies a node as a causal input or a downstream effect.
type Role int

const (
	// Observer nodes measure downstream effects (e.g. a BPM).
	Observer Role = iota
	// Setpoint nodes carry a commanded value (e.g. a magnet).
	Setpoint
)

func (r Role) String() string {
	if r == Setpoint {
		return "setpoint"
	}
	return "observer"
}

// Node wraps one inventory element together with everything the graph
// output needs: its resolved type chain, its role, the archiver channels to
// sample for it, its output attributes, and (after sampling) one row set
// per window.
//
// Downstream is populated only by List.PopulateLinks and only on setpoints:
// a bitmap of the node ids this setpoint feeds, indices into the owning
// List rather than pointers, so nodes serialize independently and never
// form ownership cycles.
type Node struct {
	ID         int               `json:"node_id"`
	Element    ced.Element       `json:"element"`
	TypeChain  []string          `json:"type_chain"`
	Role       Role              `json:"role"`
	Channels   []string          `json:"channels"`
	Attributes map[string]string `json:"attributes,omitempty"`
	// Samples holds the fetched rows for each window, indexed like the
	// planned window list.
	Samples [][]mya.Row `json:"samples,omitempty"`

	Downstream *roaring.Bitmap `json:"-"`
}

// IsSetpoint reports whether this node opens a downstream segment.
func (n *Node) IsSetpoint() bool {
	return n.Role == Setpoint
}

// MakeNode resolves an element against the config rules. The second return
// is false when no rule matches any entry of the element's type chain —
// a normal outcome when the inventory query is broader than the config
// (e.g. querying all of BeamElem with rules only for Magnet and BPM).
//
// The most specific matching rule wins: the chain is walked from the
// element's own type upward and the first type with a rule decides role,
// channels, and attributes. An error means the element matched but its
// channel templates cannot be expanded; callers log and skip it.
func MakeNode(ctx context.Context, element ced.Element, tree *ced.TypeTree, cfg api.Nodes) (*Node, bool, error) {
	chain := tree.Ancestors(ctx, element.Type)

	var rule *api.Rule
	for _, ancestor := range chain {
		for i := range cfg.Rules {
			if cfg.Rules[i].Type == ancestor {
				rule = &cfg.Rules[i]
				break
			}
		}
		if rule != nil {
			break
		}
	}
	if rule == nil {
		return nil, false, nil
	}

	channels := make([]string, 0, len(rule.Channels))
	for _, tmpl := range rule.Channels {
		ch, err := expandChannel(tmpl, element)
		if err != nil {
			return nil, false, fmt.Errorf("element %s (%s): %w", element.Name, element.Type, err)
		}
		channels = append(channels, ch)
	}

	attrs := make(map[string]string, len(cfg.DefaultAttributes)+len(rule.Attributes))
	for k, v := range cfg.DefaultAttributes {
		attrs[k] = v
	}
	for k, v := range rule.Attributes {
		attrs[k] = v
	}

	role := Observer
	if rule.Setpoint {
		role = Setpoint
	}
	return &Node{
		ID:         -1, // assigned on append
		Element:    element,
		TypeChain:  append([]string(nil), chain...),
		Role:       role,
		Channels:   channels,
		Attributes: attrs,
	}, true, nil
}

var channelVar = regexp.MustCompile(`<([A-Za-z0-9_]+)>`)

// expandChannel substitutes <name> with the element name and <Prop> with
// the element's property or expression result of that name.
func expandChannel(tmpl string, element ced.Element) (string, error) {
	var missing string
	out := channelVar.ReplaceAllStringFunc(tmpl, func(match string) string {
		key := match[1 : len(match)-1]
		if key == "name" {
			return element.Name
		}
		if v, ok := element.Property(key); ok {
			return v
		}
		missing = key
		return match
	})
	if missing != "" {
		return "", fmt.Errorf("channel template %q: element has no property %q", tmpl, missing)
	}
	return out, nil
}

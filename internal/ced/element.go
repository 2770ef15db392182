// Package ced talks to the CED web API: the element inventory and the type
// catalog. It also owns the TypeTree used to match elements of specific
// types (QB) against rules written for their ancestors (Quad, Magnet).
package ced

// Element is one raw inventory record. Immutable once fetched; the order in
// which elements come back from the inventory query is significant and is
// preserved all the way into node id assignment.
type Element struct {
	Name string `json:"name"`
	Type string `json:"type"`
	// Properties holds the requested CED properties as strings.
	Properties map[string]string `json:"properties,omitempty"`
	// Expressions holds the results of the requested CED expressions,
	// keyed by the result name from the config.
	Expressions map[string]string `json:"expressions,omitempty"`
}

// Property returns a named property value, falling back to the expression
// results so channel templates can reference either.
func (e Element) Property(name string) (string, bool) {
	if v, ok := e.Properties[name]; ok {
		return v, true
	}
	v, ok := e.Expressions[name]
	return v, ok
}

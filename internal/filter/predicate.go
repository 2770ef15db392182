// Package filter evaluates the global-data predicate that decides which
// intervals make it into the output. The predicate is a single HCL
// expression over the global channel values, e.g. "IBC0R08CRCUR1 > 2".
package filter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"

	"github.com/JeffersonLab/ced2gnn/internal/mya"
)

// Predicate is a compiled filter expression. The zero-value (nil) Predicate
// passes everything.
type Predicate struct {
	src  string
	expr hcl.Expression
}

// Compile parses the expression once. An empty source yields a nil
// Predicate.
func Compile(src string) (*Predicate, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, nil
	}
	expr, diags := hclsyntax.ParseExpression([]byte(src), "filter.expression", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, fmt.Errorf("filter expression %q: %s", src, diags.Error())
	}
	return &Predicate{src: src, expr: expr}, nil
}

// String returns the original expression source.
func (p *Predicate) String() string {
	if p == nil {
		return ""
	}
	return p.src
}

// PassWindow reports whether an interval survives: every sampled row of its
// global data must satisfy the expression. A row where a referenced channel
// is absent (the archiver can omit a channel it errored on) or holds a
// non-numeric value fails that row rather than aborting the run.
func (p *Predicate) PassWindow(data mya.WindowData) (bool, error) {
	if p == nil {
		return true, nil
	}
	for _, row := range data.Rows {
		ok, err := p.EvalRow(row)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// EvalRow applies the expression to one sampled row.
func (p *Predicate) EvalRow(row mya.Row) (bool, error) {
	if p == nil {
		return true, nil
	}
	vars := make(map[string]cty.Value, len(row.Values))
	for channel, raw := range row.Values {
		name := Identifier(channel)
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			vars[name] = cty.NumberFloatVal(f)
		} else {
			// No-data markers and enum-style values stay strings; a
			// numeric comparison against them fails the row below.
			vars[name] = cty.StringVal(raw)
		}
	}

	val, diags := p.expr.Value(&hcl.EvalContext{Variables: vars})
	if diags.HasErrors() {
		// Unknown variables (a channel missing from the row) and type
		// mismatches (e.g. "<undefined>" > 2) both mean the row cannot
		// satisfy the predicate.
		return false, nil
	}
	if val.IsNull() || !val.Type().Equals(cty.Bool) {
		return false, fmt.Errorf("filter expression %q: result is not boolean", p.src)
	}
	return val.True(), nil
}

// Identifier maps a channel name onto a legal HCL identifier: every
// character outside [A-Za-z0-9_] becomes an underscore.
func Identifier(channel string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, channel)
}

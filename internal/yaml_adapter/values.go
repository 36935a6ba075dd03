package yaml_adapter

import (
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/specialistvlad/pipegrid/internal/expr"
	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v3"
)

// InsertKey splices a mapping-valued expression into its mapping.
const InsertKey = "$insert"

// value compiles a node into an expression: strings are templates,
// sequences tuples and mappings objects.
func (d *decoder) value(n *yaml.Node) (hclsyntax.Expression, error) {
	n = resolve(n)
	switch n.Kind {
	case yaml.ScalarNode:
		return d.scalar(n)
	case yaml.SequenceNode:
		tuple := &hclsyntax.TupleConsExpr{SrcRange: d.rng(n), OpenRange: d.rng(n)}
		for _, item := range n.Content {
			ex, err := d.value(item)
			if err != nil {
				return nil, err
			}
			tuple.Exprs = append(tuple.Exprs, ex)
		}
		return tuple, nil
	case yaml.MappingNode:
		return d.object(n)
	}
	return nil, d.errorf(n, "unsupported YAML node")
}

func (d *decoder) scalar(n *yaml.Node) (hclsyntax.Expression, error) {
	switch n.ShortTag() {
	case "!!str":
		ex, err := expr.ParseTemplate(n.Value, d.file, n.Line)
		if err != nil {
			return nil, d.errorf(n, "%s", err)
		}
		return ex.(hclsyntax.Expression), nil
	case "!!null":
		return d.literal(n, cty.NullVal(cty.DynamicPseudoType)), nil
	case "!!bool":
		b, err := strconv.ParseBool(n.Value)
		if err != nil {
			return nil, d.errorf(n, "invalid bool %q", n.Value)
		}
		return d.literal(n, cty.BoolVal(b)), nil
	case "!!int", "!!float":
		num, err := cty.ParseNumberVal(strings.ReplaceAll(n.Value, "_", ""))
		if err != nil {
			return nil, d.errorf(n, "invalid number %q", n.Value)
		}
		return d.literal(n, num), nil
	}
	return nil, d.errorf(n, "unsupported scalar tag %s", n.ShortTag())
}

// predicate compiles a field that is an expression rather than a template.
// A string wrapped entirely in ${...} is accepted too.
func (d *decoder) predicate(n *yaml.Node) (hclsyntax.Expression, error) {
	n = resolve(n)
	if n.Kind != yaml.ScalarNode || n.ShortTag() != "!!str" {
		return d.value(n)
	}
	src := strings.TrimSpace(n.Value)
	if strings.HasPrefix(src, "${") && strings.HasSuffix(src, "}") && strings.Count(src, "${") == 1 {
		src = src[2 : len(src)-1]
	}
	ex, err := expr.ParseExpression(src, d.file, n.Line)
	if err != nil {
		return nil, d.errorf(n, "%s", err)
	}
	return ex.(hclsyntax.Expression), nil
}

// object compiles a mapping. Insert keys split it into segments that are
// combined with merge, later segments winning.
func (d *decoder) object(n *yaml.Node) (hclsyntax.Expression, error) {
	fields, err := d.fields(n, "mapping")
	if err != nil {
		return nil, err
	}

	var segments []hclsyntax.Expression
	var items []hclsyntax.ObjectConsItem
	inserted := false
	flush := func() {
		if len(items) > 0 {
			segments = append(segments, &hclsyntax.ObjectConsExpr{Items: items, SrcRange: d.rng(n), OpenRange: d.rng(n)})
			items = nil
		}
	}
	for _, f := range fields {
		ex, err := d.value(f.value)
		if err != nil {
			return nil, err
		}
		if f.key == InsertKey {
			flush()
			segments = append(segments, ex)
			inserted = true
			continue
		}
		items = append(items, hclsyntax.ObjectConsItem{
			KeyExpr:   d.literal(f.node, cty.StringVal(f.key)),
			ValueExpr: ex,
		})
	}
	flush()

	switch {
	case len(segments) == 0:
		return &hclsyntax.ObjectConsExpr{SrcRange: d.rng(n), OpenRange: d.rng(n)}, nil
	case !inserted:
		return segments[0], nil
	}
	return &hclsyntax.FunctionCallExpr{
		Name:            expr.MergeFunction,
		Args:            segments,
		NameRange:       d.rng(n),
		OpenParenRange:  d.rng(n),
		CloseParenRange: d.rng(n),
	}, nil
}

func (d *decoder) literal(n *yaml.Node, v cty.Value) *hclsyntax.LiteralValueExpr {
	return &hclsyntax.LiteralValueExpr{Val: v, SrcRange: d.rng(n)}
}

func (d *decoder) rng(n *yaml.Node) hcl.Range {
	pos := hcl.Pos{Line: n.Line, Column: n.Column}
	return hcl.Range{Filename: d.file, Start: pos, End: pos}
}

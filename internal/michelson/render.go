package michelson

import (
	"strconv"
	"strings"
)

// Render converts an AST node to textual Michelson.
func Render(n Node) string {
	return renderNode(n, false)
}

// RenderSchema renders a script's top-level code sequence: the
// parameter/storage/code triple becomes one declaration per line, each
// terminated with a semicolon.
func RenderSchema(n Node) string {
	if !n.isSeq {
		return renderNode(n, false)
	}

	decls := make([]string, 0, len(n.Seq))
	for _, member := range n.Seq {
		decls = append(decls, renderNode(member, false)+";")
	}
	return strings.Join(decls, "\n")
}

func renderNode(n Node, nested bool) string {
	switch {
	case n.isSeq:
		return renderSeq(n.Seq)
	case n.Int != nil:
		return *n.Int
	case n.String != nil:
		return strconv.Quote(*n.String)
	case n.Bytes != nil:
		return "0x" + *n.Bytes
	default:
		return renderPrim(n, nested)
	}
}

func renderSeq(members []Node) string {
	if len(members) == 0 {
		return "{}"
	}

	parts := make([]string, 0, len(members))
	for _, member := range members {
		parts = append(parts, renderNode(member, false))
	}
	return "{ " + strings.Join(parts, " ; ") + " }"
}

func renderPrim(n Node, nested bool) string {
	parts := make([]string, 0, 1+len(n.Annots)+len(n.Args))
	parts = append(parts, n.Prim)
	parts = append(parts, n.Annots...)

	for _, arg := range n.Args {
		parts = append(parts, renderNode(arg, true))
	}

	rendered := strings.Join(parts, " ")

	// A bare primitive never needs grouping; an application does when it
	// appears as an argument itself.
	if nested && len(parts) > 1 {
		return "(" + rendered + ")"
	}
	return rendered
}

// Package michelson parses the JSON representation of Michelson embedded in
// node responses and renders it back to its textual source form.
package michelson

import (
	"encoding/json"
	"fmt"
)

// Node is one JSON Michelson AST node: a literal (int, string or bytes), a
// primitive application, or a sequence.
type Node struct {
	Int    *string
	String *string
	Bytes  *string
	Prim   string
	Args   []Node
	Annots []string
	Seq    []Node

	isSeq bool
}

type primNode struct {
	Int    *string  `json:"int,omitempty"`
	String *string  `json:"string,omitempty"`
	Bytes  *string  `json:"bytes,omitempty"`
	Prim   string   `json:"prim,omitempty"`
	Args   []Node   `json:"args,omitempty"`
	Annots []string `json:"annots,omitempty"`
}

// UnmarshalJSON accepts either an object node or an array sequence.
func (n *Node) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '[' {
		var seq []Node
		if err := json.Unmarshal(data, &seq); err != nil {
			return err
		}
		*n = Node{Seq: seq, isSeq: true}
		return nil
	}

	var obj primNode
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if obj.Int == nil && obj.String == nil && obj.Bytes == nil && obj.Prim == "" {
		return fmt.Errorf("not a michelson node")
	}
	*n = Node{
		Int:    obj.Int,
		String: obj.String,
		Bytes:  obj.Bytes,
		Prim:   obj.Prim,
		Args:   obj.Args,
		Annots: obj.Annots,
	}
	return nil
}

// Parse decodes a JSON Michelson expression into its AST.
func Parse(raw []byte) (Node, error) {
	var node Node
	if err := json.Unmarshal(raw, &node); err != nil {
		return Node{}, fmt.Errorf("invalid michelson expression: %w", err)
	}
	return node, nil
}

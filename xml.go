package gosm

import (
	"encoding/xml"
	"io"
	"strings"

	"github.com/pkg/errors"
)

/*
Generic element of a parsed configuration or mapper document. Gosm never looks
at documents through anything other than this tree, so callers may build one by
hand instead of parsing XML. See `ParseDocument()`.
*/
type Node struct {
	Name     string
	Attrs    []Attr
	Children []*Node

	// Concatenated character data directly inside this element, including
	// CDATA sections. Text of child elements is not included.
	Text string
}

// Attribute of a `Node`.
type Attr struct {
	Name  string
	Value string
}

// Returns the value of the named attribute and whether it was present.
func (self *Node) Attr(name string) (string, bool) {
	if self == nil {
		return "", false
	}
	for _, attr := range self.Attrs {
		if attr.Name == name {
			return attr.Value, true
		}
	}
	return "", false
}

// Returns the value of the named attribute, or "" if missing.
func (self *Node) AttrValue(name string) string {
	val, _ := self.Attr(name)
	return val
}

// Returns the direct children with the given name, in document order.
func (self *Node) ChildrenNamed(name string) []*Node {
	if self == nil {
		return nil
	}
	var out []*Node
	for _, child := range self.Children {
		if child.Name == name {
			out = append(out, child)
		}
	}
	return out
}

/*
Returns the first descendant (depth-first, document order) with the given name,
not including the node itself. Equivalent to the `//name` path expression
evaluated relative to this node.
*/
func (self *Node) Find(name string) *Node {
	if self == nil {
		return nil
	}
	for _, child := range self.Children {
		if child.Name == name {
			return child
		}
		found := child.Find(name)
		if found != nil {
			return found
		}
	}
	return nil
}

/*
Parses an XML document into a `Node` tree and returns the root element. Element
and attribute names are taken without namespace prefixes. DTD declarations,
comments and processing instructions are ignored, and external entities are
never resolved.
*/
func ParseDocument(reader io.Reader) (*Node, error) {
	root, err := parseXml(reader)
	if err != nil {
		return nil, ErrConfiguration.while(`parsing XML document`).because(err)
	}
	return root, nil
}

func parseXml(reader io.Reader) (*Node, error) {
	dec := xml.NewDecoder(reader)
	dec.Strict = true

	var root *Node
	var stack []*Node
	var text []*strings.Builder

	for {
		token, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.WithStack(err)
		}

		switch token := token.(type) {
		case xml.StartElement:
			node := &Node{Name: token.Name.Local}
			for _, attr := range token.Attr {
				node.Attrs = append(node.Attrs, Attr{Name: attr.Name.Local, Value: attr.Value})
			}

			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, node)
			} else if root == nil {
				root = node
			}

			stack = append(stack, node)
			text = append(text, &strings.Builder{})

		case xml.EndElement:
			last := len(stack) - 1
			stack[last].Text = text[last].String()
			stack = stack[:last]
			text = text[:last]

		case xml.CharData:
			if len(text) > 0 {
				text[len(text)-1].Write(token)
			}
		}
	}

	if root == nil {
		return nil, errors.New(`document has no root element`)
	}
	return root, nil
}

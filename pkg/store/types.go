package store

import "github.com/dyedgreen/cqlite-sub000/pkg/value"

// Node is a labeled, identified vertex with a property bag.
type Node struct {
	Id         uint64
	Label      string
	Properties value.Map
}

// Edge is a labeled, directed, identified connection between two nodes.
type Edge struct {
	Id         uint64
	Label      string
	Origin     uint64
	Target     uint64
	Properties value.Map
}

func (n Node) clone() Node {
	c := n
	c.Properties = n.Properties.Clone()
	return c
}

func (e Edge) clone() Edge {
	c := e
	c.Properties = e.Properties.Clone()
	return c
}

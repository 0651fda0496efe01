package search

import (
	"fmt"

	"github.com/awalterschulze/gographviz"
)

// DumpDOT renders the live subtree reachable from root as a Graphviz DOT
// document, labelling each edge with its visit count and Q value. It is
// a debug/diagnostic aid with no caller inside the search or the UCI
// loop; it is not part of the search hot path. maxDepth bounds how deep the dump
// descends so a long-running search's tree stays renderable.
func DumpDOT(root *Node, maxDepth int) (string, error) {
	g := gographviz.NewGraph()
	if err := g.SetName("tree"); err != nil {
		return "", err
	}
	if err := g.SetDir(true); err != nil {
		return "", err
	}

	seen := make(map[*Node]string)
	if _, err := ensureNode(g, root, seen); err != nil {
		return "", err
	}
	if err := dumpChildren(g, root, 0, maxDepth, seen); err != nil {
		return "", err
	}
	return g.String(), nil
}

func ensureNode(g *gographviz.Graph, n *Node, seen map[*Node]string) (name string, err error) {
	if name, ok := seen[n]; ok {
		return name, nil
	}
	name = fmt.Sprintf("n%d", len(seen))
	seen[n] = name
	label := fmt.Sprintf("\"visits=%d value=%.3f\"", n.TotalVisits(), n.Value())
	if err := g.AddNode("tree", name, map[string]string{"label": label}); err != nil {
		return "", err
	}
	return name, nil
}

// dumpChildren adds every still-alive child edge of n and recurses,
// stopping at maxDepth. A node already visited (shared via a
// transposition) gets its edge drawn but is not re-expanded.
func dumpChildren(g *gographviz.Graph, n *Node, depth, maxDepth int, seen map[*Node]string) error {
	if depth >= maxDepth {
		return nil
	}
	name := seen[n]

	for i, mv := range n.LegalMoves() {
		child := n.Child(i)
		if child == nil {
			continue
		}
		_, childAlreadySeen := seen[child]
		childName, err := ensureNode(g, child, seen)
		if err != nil {
			return err
		}
		edgeLabel := fmt.Sprintf("\"%s visits=%d q=%.3f\"", mv.UCI(), n.Visits(i), n.Q(i))
		if err := g.AddEdge(name, childName, true, map[string]string{"label": edgeLabel}); err != nil {
			return err
		}
		if !childAlreadySeen {
			if err := dumpChildren(g, child, depth+1, maxDepth, seen); err != nil {
				return err
			}
		}
	}
	return nil
}

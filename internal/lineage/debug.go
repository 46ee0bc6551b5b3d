package lineage

import (
	"fmt"
	"strings"

	"github.com/go-sif/rdd/types"
)

// Debug renders the lineage of a Node as an indented tree. Shuffle boundaries increase the indentation.
func (g *Graph) Debug(id types.DatasetID) string {
	var b strings.Builder
	g.debug(&b, id, 0, "")
	return b.String()
}

func (g *Graph) debug(b *strings.Builder, id types.DatasetID, depth int, prefix string) {
	n, ok := g.Node(id)
	if !ok {
		return
	}
	indent := strings.Repeat(" |  ", depth)
	var flags []string
	if g.IsPersisted(id) {
		flags = append(flags, "persisted")
	}
	if g.IsReleased(id) {
		flags = append(flags, "released")
	}
	fmt.Fprintf(b, "%s%s(%d) %s [%s]", indent, prefix, n.NumPartitions, n, n.Elem)
	if len(flags) > 0 {
		fmt.Fprintf(b, " {%s}", strings.Join(flags, ", "))
	}
	b.WriteString("\n")
	for _, p := range n.Parents {
		if n.Transform.Kind.IsWide() {
			g.debug(b, p, depth+1, "+-")
		} else {
			g.debug(b, p, depth, "")
		}
	}
}

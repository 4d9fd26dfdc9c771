package turngraph

import (
	"fmt"
	"strings"
)

// Mermaid renders the graph as a Mermaid flowchart.
// START and END are drawn as circles, conditional edges carry their label.
// Nodes listed in visited are highlighted, which is how a turn's Path is
// overlaid on the structure.
func (cg *CompiledGraph) Mermaid(visited ...string) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")
	sb.WriteString(fmt.Sprintf("    %s((\"%s\"))\n", mermaidID(START), "start"))
	for _, id := range cg.order {
		sb.WriteString(fmt.Sprintf("    %s[\"%s\"]\n", mermaidID(id), id))
	}
	sb.WriteString(fmt.Sprintf("    %s((\"%s\"))\n", mermaidID(END), "end"))

	for _, from := range append([]string{START}, cg.order...) {
		t, ok := cg.transitions[from]
		if !ok {
			continue
		}
		if !t.conditional() {
			sb.WriteString(fmt.Sprintf("    %s --> %s\n", mermaidID(from), mermaidID(t.to)))
			continue
		}
		for _, label := range t.labels {
			safe := strings.ReplaceAll(string(label), "\"", "'")
			sb.WriteString(fmt.Sprintf("    %s -. \"%s\" .-> %s\n", mermaidID(from), safe, mermaidID(t.targets[label])))
		}
	}

	if len(visited) > 0 {
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		seen := make(map[string]bool, len(visited))
		for _, id := range visited {
			if seen[id] || !cg.HasNode(id) {
				continue
			}
			seen[id] = true
			sb.WriteString(fmt.Sprintf("    class %s visited;\n", mermaidID(id)))
		}
	}
	return sb.String()
}

func mermaidID(id string) string {
	switch id {
	case START:
		return "START"
	case END:
		return "END"
	}
	r := strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_")
	return "n_" + r.Replace(id)
}

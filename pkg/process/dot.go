package process

import (
	"bufio"
	"fmt"
	"io"
)

// WriteDOT renders graph in Graphviz DOT format. Virtual steps are drawn as
// diamonds, the initial step with a double border and the default
// successor edge in bold.
func WriteDOT(w io.Writer, graph *Graph) error {
	definition := graph.Process()
	out := bufio.NewWriter(w)

	fmt.Fprintf(out, "digraph %q {\n", definition.OwnerModel+"."+definition.ProcessField)
	fmt.Fprintf(out, "\trankdir=LR;\n")

	for _, step := range graph.Steps() {
		shape := "box"
		if step.IsVirtual {
			shape = "diamond"
		}

		peripheries := 1
		if step.TechnicalName == definition.InitialStep {
			peripheries = 2
		}

		fmt.Fprintf(out, "\t%q [label=%q, shape=%s, peripheries=%d];\n",
			step.TechnicalName, step.DisplayName, shape, peripheries)
	}

	for _, step := range graph.Steps() {
		for i, next := range graph.Successors(step) {
			style := "solid"
			if i == 0 {
				style = "bold"
			}

			fmt.Fprintf(out, "\t%q -> %q [style=%s];\n", step.TechnicalName, next.TechnicalName, style)
		}
	}

	fmt.Fprintf(out, "}\n")

	if err := out.Flush(); err != nil {
		return fmt.Errorf("failed to write graph: %w", err)
	}

	return nil
}

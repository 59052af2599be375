package export

import (
	"fmt"
	"regexp"
	"strings"

	"proofdeps/internal/graph"
	"proofdeps/internal/ir"
)

const maxLabelRunes = 48

var nonIDChars = regexp.MustCompile(`[^a-z0-9_]`)

// categoryClass maps a category to its Mermaid class and fill colour.
var categoryClass = map[ir.Category][2]string{
	ir.ExplicitAssumption:             {"explicitAssumption", "#c8e6c9"},
	ir.ImplicitAssumption:             {"implicitAssumption", "#e8f5e9"},
	ir.InternalAssumption:             {"internalAssumption", "#f1f8e9"},
	ir.ExplicitAssertion:              {"explicitAssertion", "#bbdefb"},
	ir.ExplicitAssertionPostcondition: {"postcondition", "#d1c4e9"},
	ir.ImplicitAssertion:              {"implicitAssertion", "#e3f2fd"},
	ir.Infeasible:                     {"infeasible", "#ffcdd2"},
	ir.Unknown:                        {"unknown", "#eeeeee"},
}

// MermaidGenerator renders line graphs as Mermaid flowcharts.
type MermaidGenerator struct {
	// Fenced wraps the output in a ```mermaid block.
	Fenced bool
}

// GenerateFlowChart draws the given lines and the edges between them. A nil
// lines slice draws the whole graph.
func (m *MermaidGenerator) GenerateFlowChart(g *graph.Graph, lines []int) string {
	if lines == nil {
		lines = g.Lines()
	}
	keep := make(map[int]bool, len(lines))
	for _, l := range lines {
		keep[l] = true
	}

	var sb strings.Builder
	if m.Fenced {
		sb.WriteString("```mermaid\n")
	}
	sb.WriteString("graph TD\n")

	used := make(map[ir.Category]bool)
	for _, l := range lines {
		v, ok := g.Vertex(l)
		if !ok {
			continue
		}
		cat := PrimaryCategory(v)
		used[cat] = true
		sb.WriteString(fmt.Sprintf("    %s[\"%s\"]:::%s\n", lineID(l), nodeLabel(v), categoryClass[cat][0]))
	}
	for _, e := range g.Edges() {
		if keep[e.Source] && keep[e.Target] {
			sb.WriteString(fmt.Sprintf("    %s --> %s\n", lineID(e.Source), lineID(e.Target)))
		}
	}
	for _, c := range ir.AllCategories {
		if used[c] {
			sb.WriteString(fmt.Sprintf("    classDef %s fill:%s\n", categoryClass[c][0], categoryClass[c][1]))
		}
	}

	if m.Fenced {
		sb.WriteString("```\n")
	}
	return sb.String()
}

// PrimaryCategory picks the first of a vertex's categories in display order.
func PrimaryCategory(v *graph.Vertex) ir.Category {
	for _, c := range v.Categories.Sorted() {
		if _, ok := categoryClass[c]; ok {
			return c
		}
	}
	return ir.Unknown
}

func lineID(line int) string {
	return sanitizeMermaidID(fmt.Sprintf("L%d", line))
}

func nodeLabel(v *graph.Vertex) string {
	content := v.Content
	if r := []rune(content); len(r) > maxLabelRunes {
		content = string(r[:maxLabelRunes-1]) + "…"
	}
	// Mermaid has no escape for a double quote inside a quoted label.
	content = strings.ReplaceAll(content, `"`, "#quot;")
	if content == "" {
		return fmt.Sprintf("%d", v.Line)
	}
	return fmt.Sprintf("%d: %s", v.Line, content)
}

func sanitizeMermaidID(v string) string {
	v = strings.TrimSpace(strings.ToLower(v))
	if v == "" {
		return "node"
	}
	v = nonIDChars.ReplaceAllString(strings.ReplaceAll(v, "-", "_"), "_")
	if v[0] >= '0' && v[0] <= '9' {
		v = "n_" + v
	}
	return v
}

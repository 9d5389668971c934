package formatter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/harunnryd/llmkit/internal/model"
	"github.com/harunnryd/llmkit/internal/vector"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
)

type TableFormatter struct {
	headerStyle  lipgloss.Style
	oddRowStyle  lipgloss.Style
	evenRowStyle lipgloss.Style
	borderStyle  lipgloss.Style
}

func NewTableFormatter() *TableFormatter {
	purple := lipgloss.Color("99")
	gray := lipgloss.Color("245")
	lightGray := lipgloss.Color("241")

	return &TableFormatter{
		headerStyle: lipgloss.NewStyle().
			Foreground(purple).
			Bold(true).
			Align(lipgloss.Center).
			Padding(0, 1),
		oddRowStyle: lipgloss.NewStyle().
			Foreground(gray).
			Padding(0, 1),
		evenRowStyle: lipgloss.NewStyle().
			Foreground(lightGray).
			Padding(0, 1),
		borderStyle: lipgloss.NewStyle().
			Foreground(purple),
	}
}

func (f *TableFormatter) newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(f.borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return f.headerStyle
			case row%2 == 0:
				return f.evenRowStyle
			default:
				return f.oddRowStyle
			}
		}).
		Headers(headers...)
}

func (f *TableFormatter) FormatProviders(providers []model.ProviderInfo) (string, error) {
	if len(providers) == 0 {
		return "No providers configured", nil
	}

	t := f.newTable("Name", "Backend", "Model", "Key", "Role")
	for _, p := range providers {
		key := "missing"
		if p.HasKey {
			key = "set"
		}
		var roles []string
		if p.Default {
			roles = append(roles, "default")
		}
		if p.Embedding {
			roles = append(roles, "embedding")
		}
		modelName := p.Model
		if modelName == "" {
			modelName = "(backend default)"
		}
		t.Row(p.Name, p.Backend, truncateString(modelName, 30), key, strings.Join(roles, ", "))
	}
	return t.String(), nil
}

func (f *TableFormatter) FormatResults(results []vector.Result) (string, error) {
	if len(results) == 0 {
		return "No matching documents", nil
	}

	t := f.newTable("ID", "Score", "Content")
	for _, r := range results {
		t.Row(r.ID, fmt.Sprintf("%.3f", r.Similarity), truncateString(oneLine(r.Content), 60))
	}
	return t.String(), nil
}

func (f *TableFormatter) FormatOutputs(outputs map[string]map[string]string) (string, error) {
	if len(outputs) == 0 {
		return "No outputs", nil
	}

	chains := make([]string, 0, len(outputs))
	for name := range outputs {
		chains = append(chains, name)
	}
	sort.Strings(chains)

	t := f.newTable("Chain", "Step", "Output")
	for _, name := range chains {
		steps := make([]string, 0, len(outputs[name]))
		for id := range outputs[name] {
			steps = append(steps, id)
		}
		sort.Strings(steps)
		for _, id := range steps {
			t.Row(name, id, truncateString(oneLine(outputs[name][id]), 60))
		}
	}
	return t.String(), nil
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

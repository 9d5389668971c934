package formatter

import (
	"fmt"
	"strings"

	"github.com/harunnryd/llmkit/internal/model"
	"github.com/harunnryd/llmkit/internal/vector"
)

type OutputFormat string

const (
	OutputFormatTable OutputFormat = "table"
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatYAML  OutputFormat = "yaml"
)

type Formatter interface {
	FormatProviders([]model.ProviderInfo) (string, error)
	FormatResults([]vector.Result) (string, error)
	FormatOutputs(map[string]map[string]string) (string, error)
}

type FormatterFactory struct{}

func NewFormatterFactory() *FormatterFactory {
	return &FormatterFactory{}
}

func (f *FormatterFactory) Create(format OutputFormat) (Formatter, error) {
	switch format {
	case OutputFormatTable:
		return NewTableFormatter(), nil
	case OutputFormatJSON:
		return NewJSONFormatter(), nil
	case OutputFormatYAML:
		return NewYAMLFormatter(), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s (supported: table, json, yaml)", format)
	}
}

func ParseOutputFormat(s string) (OutputFormat, error) {
	format := OutputFormat(strings.ToLower(s))
	switch format {
	case OutputFormatTable, OutputFormatJSON, OutputFormatYAML:
		return format, nil
	default:
		return "", fmt.Errorf("invalid output format: %s (supported: table, json, yaml)", s)
	}
}

// resultView is the serialized form of a search result.
type resultView struct {
	ID         string            `json:"id" yaml:"id"`
	Similarity float32           `json:"similarity" yaml:"similarity"`
	Content    string            `json:"content" yaml:"content"`
	Metadata   map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

func resultViews(results []vector.Result) []resultView {
	out := make([]resultView, 0, len(results))
	for _, r := range results {
		out = append(out, resultView{ID: r.ID, Similarity: r.Similarity, Content: r.Content, Metadata: r.Metadata})
	}
	return out
}

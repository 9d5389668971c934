package formatter

import (
	"encoding/json"

	"github.com/harunnryd/llmkit/internal/model"
	"github.com/harunnryd/llmkit/internal/vector"
)

type JSONFormatter struct{}

func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

func (f *JSONFormatter) FormatProviders(providers []model.ProviderInfo) (string, error) {
	return marshalJSON(providers)
}

func (f *JSONFormatter) FormatResults(results []vector.Result) (string, error) {
	return marshalJSON(resultViews(results))
}

func (f *JSONFormatter) FormatOutputs(outputs map[string]map[string]string) (string, error) {
	return marshalJSON(outputs)
}

func marshalJSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

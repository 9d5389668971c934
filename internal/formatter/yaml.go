package formatter

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/harunnryd/llmkit/internal/model"
	"github.com/harunnryd/llmkit/internal/vector"
)

type YAMLFormatter struct{}

func NewYAMLFormatter() *YAMLFormatter {
	return &YAMLFormatter{}
}

func (f *YAMLFormatter) FormatProviders(providers []model.ProviderInfo) (string, error) {
	return marshalYAML(providers)
}

func (f *YAMLFormatter) FormatResults(results []vector.Result) (string, error) {
	return marshalYAML(resultViews(results))
}

func (f *YAMLFormatter) FormatOutputs(outputs map[string]map[string]string) (string, error) {
	return marshalYAML(outputs)
}

func marshalYAML(v any) (string, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// Package chain runs multi-step prompt chains. Each step renders its template
// from the outputs of earlier steps and sends it to a provider.
package chain

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	llmErrors "github.com/harunnryd/llmkit/internal/errors"
	"github.com/harunnryd/llmkit/internal/logger"
	"github.com/harunnryd/llmkit/internal/model/contract"
)

type Mode string

const (
	ModeChat       Mode = "chat"
	ModeCompletion Mode = "completion"
)

// Step is one prompt in a chain. Temperature and MaxTokens apply to
// completion steps only; chat steps use the provider's configuration.
type Step struct {
	ID          string   `yaml:"id"`
	Template    string   `yaml:"template"`
	Mode        Mode     `yaml:"mode,omitempty"`
	Provider    string   `yaml:"provider,omitempty"`
	Temperature *float32 `yaml:"temperature,omitempty"`
	MaxTokens   *int     `yaml:"max_tokens,omitempty"`
}

// ProviderLookup resolves a provider by name. model.Registry satisfies it.
type ProviderLookup interface {
	Get(name string) (contract.Provider, error)
}

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.-]+)\s*\}\}`)

type Chain struct {
	name            string
	lookup          ProviderLookup
	defaultProvider string
	steps           []Step
}

// New returns a chain whose steps all run against p.
func New(name string, p contract.Provider) *Chain {
	return &Chain{name: name, lookup: single{p: p}}
}

// NewMulti returns a chain whose steps name their provider. Steps without a
// provider use defaultProvider.
func NewMulti(name string, lookup ProviderLookup, defaultProvider string) *Chain {
	return &Chain{name: name, lookup: lookup, defaultProvider: defaultProvider}
}

func (c *Chain) Name() string {
	return c.name
}

func (c *Chain) Step(s Step) *Chain {
	c.steps = append(c.steps, s)
	return c
}

func (c *Chain) Steps() []Step {
	return append([]Step(nil), c.steps...)
}

// Validate checks ids and modes, and that a placeholder naming a step of
// this chain refers to an earlier one. Placeholders naming no step are
// plain text.
func (c *Chain) Validate() error {
	if len(c.steps) == 0 {
		return llmErrors.InvalidInput(fmt.Sprintf("chain %q has no steps", c.name))
	}
	ids := make(map[string]bool, len(c.steps))
	for _, s := range c.steps {
		ids[strings.TrimSpace(s.ID)] = true
	}
	seen := make(map[string]bool, len(c.steps))
	for i, s := range c.steps {
		id := strings.TrimSpace(s.ID)
		if id == "" {
			return llmErrors.InvalidInput(fmt.Sprintf("chain %q step %d has no id", c.name, i+1))
		}
		if seen[id] {
			return llmErrors.InvalidInput(fmt.Sprintf("chain %q has duplicate step id %q", c.name, id))
		}
		if strings.TrimSpace(s.Template) == "" {
			return llmErrors.InvalidInput(fmt.Sprintf("chain %q step %q has an empty template", c.name, id))
		}
		switch s.Mode {
		case "", ModeChat, ModeCompletion:
		default:
			return llmErrors.InvalidInput(fmt.Sprintf("chain %q step %q has unknown mode %q", c.name, id, s.Mode))
		}
		for _, ref := range References(s.Template) {
			if ids[ref] && !seen[ref] {
				return llmErrors.InvalidInput(fmt.Sprintf("chain %q step %q references step %q before it runs", c.name, id, ref))
			}
		}
		seen[id] = true
	}
	return nil
}

// Run executes the steps in order and returns every step's output by id.
func (c *Chain) Run(ctx context.Context) (map[string]string, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	requestID := logger.GetRequestID(ctx)
	outputs := make(map[string]string, len(c.steps))
	for _, s := range c.steps {
		if err := ctx.Err(); err != nil {
			return outputs, err
		}

		providerName := s.Provider
		if providerName == "" {
			providerName = c.defaultProvider
		}
		p, err := c.lookup.Get(providerName)
		if err != nil {
			return outputs, llmErrors.Wrap(err, fmt.Sprintf("chain %s step %s", c.name, s.ID))
		}

		prompt := Render(s.Template, outputs)
		slog.Debug("Running chain step",
			"chain", c.name,
			"step", s.ID,
			"mode", modeOrDefault(s.Mode),
			"provider", p.Name(),
			"request_id", requestID,
		)

		out, err := runStep(ctx, p, s, prompt)
		if err != nil {
			return outputs, llmErrors.Wrap(err, fmt.Sprintf("chain %s step %s", c.name, s.ID))
		}
		outputs[strings.TrimSpace(s.ID)] = out
	}
	return outputs, nil
}

func runStep(ctx context.Context, p contract.Provider, s Step, prompt string) (string, error) {
	if modeOrDefault(s.Mode) == ModeCompletion {
		req := contract.NewCompletionRequest(prompt)
		req.Temperature = s.Temperature
		req.MaxTokens = s.MaxTokens
		resp, err := p.Complete(ctx, req)
		if err != nil {
			return "", err
		}
		return resp.Text, nil
	}

	resp, err := p.Chat(ctx, []contract.ChatMessage{contract.UserText(prompt)})
	if err != nil {
		return "", err
	}
	text, ok := resp.Text()
	if !ok {
		return "", llmErrors.InvalidModelOutput("reply has no text")
	}
	return text, nil
}

func modeOrDefault(m Mode) Mode {
	if m == "" {
		return ModeChat
	}
	return m
}

// Render replaces {{id}} placeholders with outputs. Placeholders without an
// output are left as is.
func Render(template string, outputs map[string]string) string {
	return placeholder.ReplaceAllStringFunc(template, func(match string) string {
		id := placeholder.FindStringSubmatch(match)[1]
		if v, ok := outputs[id]; ok {
			return v
		}
		return match
	})
}

// References lists the step ids a template refers to, in order of first use.
func References(template string) []string {
	var refs []string
	seen := map[string]bool{}
	for _, m := range placeholder.FindAllStringSubmatch(template, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			refs = append(refs, m[1])
		}
	}
	return refs
}

type single struct {
	p contract.Provider
}

func (s single) Get(name string) (contract.Provider, error) {
	if name != "" {
		return nil, llmErrors.InvalidInput(fmt.Sprintf("step names provider %q but the chain has a single provider", name))
	}
	return s.p, nil
}

package chain

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	llmErrors "github.com/harunnryd/llmkit/internal/errors"
)

// Definition is one chain as written in a chain file.
type Definition struct {
	Name     string `yaml:"name"`
	Provider string `yaml:"provider,omitempty"`
	Steps    []Step `yaml:"steps"`
}

// File is a chain file. Chains in one file are independent of each other.
//
//	provider: grok
//	chains:
//	  - name: summary
//	    steps:
//	      - id: facts
//	        template: "List three facts about {{topic}}"
type File struct {
	Provider string       `yaml:"provider,omitempty"`
	Chains   []Definition `yaml:"chains"`
}

func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, llmErrors.Decode(err, "invalid chain file")
	}
	if len(f.Chains) == 0 {
		return nil, llmErrors.InvalidInput("chain file defines no chains")
	}
	return &f, nil
}

func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, llmErrors.WrapWithCategory(err, "read chain file", llmErrors.ErrInvalidInput)
	}
	return Parse(data)
}

// Build resolves every definition against lookup. A chain's provider
// overrides the file's provider.
func (f *File) Build(lookup ProviderLookup) ([]*Chain, error) {
	names := make(map[string]bool, len(f.Chains))
	chains := make([]*Chain, 0, len(f.Chains))
	for i, def := range f.Chains {
		name := strings.TrimSpace(def.Name)
		if name == "" {
			name = fmt.Sprintf("chain-%d", i+1)
		}
		if names[name] {
			return nil, llmErrors.InvalidInput(fmt.Sprintf("duplicate chain name %q", name))
		}
		names[name] = true

		provider := def.Provider
		if provider == "" {
			provider = f.Provider
		}
		c := NewMulti(name, lookup, provider)
		for _, s := range def.Steps {
			c.Step(s)
		}
		if err := c.Validate(); err != nil {
			return nil, err
		}
		chains = append(chains, c)
	}
	return chains, nil
}

// RunAll runs the chains concurrently. The first failure cancels the rest.
func RunAll(ctx context.Context, chains []*Chain) (map[string]map[string]string, error) {
	var mu sync.Mutex
	results := make(map[string]map[string]string, len(chains))

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range chains {
		g.Go(func() error {
			out, err := c.Run(gctx)
			if err != nil {
				return err
			}
			mu.Lock()
			results[c.Name()] = out
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

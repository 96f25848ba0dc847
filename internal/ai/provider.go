package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnavailable is returned when a provider cannot serve requests at all,
// for example because no API key is configured.
var ErrUnavailable = errors.New("ai provider unavailable")

type IProvider interface {
	Name() string
	Generate(ctx context.Context, model string, prompt string) (string, error)
}

type IGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type generator struct {
	provider IProvider
	model    string
}

func NewGenerator(p IProvider, model string) IGenerator {
	return &generator{provider: p, model: model}
}

func (g *generator) Generate(ctx context.Context, prompt string) (string, error) {
	return g.provider.Generate(ctx, g.model, prompt)
}

type ProviderFactory func(args interface{}) (IProvider, error)

var registry = map[string]ProviderFactory{}

func Register(name string, factory ProviderFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registry[key] = factory
}

func NewProvider(name string, args interface{}) (IProvider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("ai provider name is required")
	}
	factory := registry[key]
	if factory == nil {
		return nil, fmt.Errorf("unsupported ai provider: %s", name)
	}
	return factory(args)
}

// ProviderSpec describes one member of the fallback group.
type ProviderSpec struct {
	Name     string
	Provider string
	Model    string
	Args     interface{}
}

// BuildGenerator turns the configured providers into one generator that
// tries them in order. It returns nil when nothing is configured.
func BuildGenerator(specs []ProviderSpec) (IGenerator, error) {
	entries := make([]GeneratorEntry, 0, len(specs))
	for _, spec := range specs {
		p, err := NewProvider(spec.Provider, spec.Args)
		if err != nil {
			return nil, fmt.Errorf("init ai provider %s: %w", spec.Name, err)
		}
		name := spec.Name
		if name == "" {
			name = p.Name() + "/" + spec.Model
		}
		entries = append(entries, GeneratorEntry{Name: name, Generator: NewGenerator(p, spec.Model)})
	}
	return NewGroupGenerator(entries), nil
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("ai provider config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode ai provider config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode ai provider config: %w", err)
	}
	return nil
}

// Package node defines the executable node contract and runs nodes against a
// workflow's stored credential.
package node

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"go.uber.org/fx"

	"search-analytics-node/internal/credential"
	"search-analytics-node/internal/gsc"
	"search-analytics-node/internal/table"
)

type Input struct {
	Workflow   string
	RunID      string
	Credential *credential.Credential
	Params     json.RawMessage

	// Progress receives (done, total) updates; total may be 0 when unknown.
	Progress func(done, total int)
}

type Output struct {
	Table    *table.Table
	Warnings []string
}

type Node interface {
	Name() string
	// Validate checks params without touching the credential or the network.
	Validate(params json.RawMessage) error
	Execute(ctx context.Context, api *gsc.Client, in Input) (Output, error)
}

func AsNode(constructor any) any {
	return fx.Annotate(
		constructor,
		fx.As(new(Node)),
		fx.ResultTags(`group:"nodes"`),
	)
}

type Registry struct {
	nodes map[string]Node
}

type NewRegistryParams struct {
	fx.In

	Nodes []Node `group:"nodes"`
}

func NewRegistry(p NewRegistryParams) (*Registry, error) {
	m := make(map[string]Node, len(p.Nodes))
	for _, n := range p.Nodes {
		if _, exists := m[n.Name()]; exists {
			return nil, fmt.Errorf("duplicate node name: %s", n.Name())
		}
		m[n.Name()] = n
	}
	return &Registry{nodes: m}, nil
}

func (r *Registry) Get(name string) (Node, error) {
	n, ok := r.nodes[name]
	if !ok {
		return nil, gsc.Requestf("unknown node %q (available: %v)", name, r.Names())
	}
	return n, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.nodes))
	for name := range r.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

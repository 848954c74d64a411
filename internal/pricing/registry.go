// Package pricing holds the model cost registry and the cost calculator
// for prompt and flow runs. Costs are denominated in credits
// (1,000,000 credits = $1); billing always starts from a registry lookup,
// so an unknown model is a hard error, never a silent default.
package pricing

import (
	"errors"
	"fmt"
	"sort"
)

// ErrModelNotFound indicates the model id is not in the cost registry.
var ErrModelNotFound = errors.New("model not found in cost registry")

// ModelCost holds per-length cost in credits for one model.
type ModelCost struct {
	Short  int64 `json:"short"`
	Medium int64 `json:"medium"`
	Long   int64 `json:"long"`
}

// Cost returns the credit cost for the given prompt length.
func (c ModelCost) Cost(length PromptLength) int64 {
	switch length {
	case LengthShort:
		return c.Short
	case LengthLong:
		return c.Long
	default:
		return c.Medium
	}
}

// Registry is a static lookup of model id -> per-length cost.
type Registry struct {
	costs map[string]ModelCost
}

// defaultCosts covers the platform model catalog (credits per run).
var defaultCosts = map[string]ModelCost{
	"gpt-4o":             {Short: 7500, Medium: 15000, Long: 30000},
	"gpt-4o-mini":        {Short: 500, Medium: 1000, Long: 2000},
	"gpt-4.1":            {Short: 10000, Medium: 20000, Long: 40000},
	"o3-mini":            {Short: 5000, Medium: 10000, Long: 22000},
	"claude-sonnet-4":    {Short: 9000, Medium: 18000, Long: 36000},
	"claude-haiku-3.5":   {Short: 1200, Medium: 2400, Long: 5000},
	"claude-opus-4":      {Short: 25000, Medium: 50000, Long: 100000},
	"gemini-2.0-flash":   {Short: 400, Medium: 800, Long: 1600},
	"gemini-2.5-pro":     {Short: 6000, Medium: 12000, Long: 25000},
	"deepseek-chat":      {Short: 700, Medium: 1400, Long: 2800},
	"llama-3.3-70b":      {Short: 600, Medium: 1200, Long: 2400},
	"stable-diffusion-3": {Short: 20000, Medium: 20000, Long: 20000},
}

// NewRegistry returns a registry seeded with the platform model catalog.
func NewRegistry() *Registry {
	return NewRegistryWithCosts(defaultCosts)
}

// NewRegistryWithCosts returns a registry over the supplied cost table.
// The table is copied; later mutation of the argument has no effect.
func NewRegistryWithCosts(costs map[string]ModelCost) *Registry {
	m := make(map[string]ModelCost, len(costs))
	for id, c := range costs {
		m[id] = c
	}
	return &Registry{costs: m}
}

// Lookup returns the cost entry for a model id.
// Returns ErrModelNotFound for unknown ids.
func (r *Registry) Lookup(modelID string) (ModelCost, error) {
	c, ok := r.costs[modelID]
	if !ok {
		return ModelCost{}, fmt.Errorf("%w: %q", ErrModelNotFound, modelID)
	}
	return c, nil
}

// Models returns the registered model ids in sorted order.
func (r *Registry) Models() []string {
	ids := make([]string, 0, len(r.costs))
	for id := range r.costs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

package tool

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/sentinelworks/sentinel/internal/model/contract"
)

var (
	ErrToolNotFound = errors.New("tool not found")
	ErrToolFailed   = errors.New("tool execution failed")
)

// Invocation identifies the conversation a tool call runs on behalf of.
// It is passed explicitly to every Execute call; tools must never read
// thread or user identity from ambient context values.
type Invocation struct {
	ThreadID string
	UserID   string
}

// Tool represents an executable capability.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, inv Invocation, input json.RawMessage) (Result, error)
}

// GroupProvider is implemented by tools that belong to a gated tool group.
// Grouped tools only enter the active set when the gate admits them.
type GroupProvider interface {
	Group() string
}

// Descriptor pairs a tool definition with its provenance.
type Descriptor struct {
	Definition contract.ToolDef
	Source     string // "builtin" or "discovered"
	Group      string // empty for ungated tools
}

type registration struct {
	tool   Tool
	source string
	group  string
}

// Registry holds all available tools. Builtin tools register once at
// startup; discovered tools are replaced wholesale on each refresh.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]registration
}

func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]registration),
	}
}

func (r *Registry) Register(t Tool) {
	r.register(t, "builtin")
}

func (r *Registry) register(t Tool, source string) {
	name := NormalizeToolName(t.Name())
	if name == "" {
		panic("tool: empty tool name")
	}

	group := ""
	if gp, ok := t.(GroupProvider); ok {
		group = strings.TrimSpace(strings.ToLower(gp.Group()))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = registration{tool: t, source: source, group: group}
}

// ReplaceDiscovered swaps the full set of discovered tools in one step.
// Builtin registrations are untouched; a discovered tool never shadows a
// builtin of the same name.
func (r *Registry) ReplaceDiscovered(tools []Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, reg := range r.tools {
		if reg.source == "discovered" {
			delete(r.tools, name)
		}
	}
	for _, t := range tools {
		name := NormalizeToolName(t.Name())
		if name == "" {
			continue
		}
		if existing, ok := r.tools[name]; ok && existing.source == "builtin" {
			continue
		}
		group := ""
		if gp, ok := t.(GroupProvider); ok {
			group = strings.TrimSpace(strings.ToLower(gp.Group()))
		}
		r.tools[name] = registration{tool: t, source: "discovered", group: group}
	}
}

func (r *Registry) Get(name string) (Tool, bool) {
	name = NormalizeToolName(name)

	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return reg.tool, true
}

// Descriptors returns every registered tool, sorted by name.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	descriptors := make([]Descriptor, 0, len(names))
	for _, name := range names {
		reg := r.tools[name]
		descriptors = append(descriptors, Descriptor{
			Definition: contract.ToolDef{
				Name:        name,
				Description: reg.tool.Description(),
				Parameters:  reg.tool.Parameters(),
			},
			Source: reg.source,
			Group:  reg.group,
		})
	}
	return descriptors
}

func NormalizeToolName(name string) string {
	return strings.TrimSpace(name)
}

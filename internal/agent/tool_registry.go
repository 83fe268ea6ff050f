package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/agentcore/nexus/internal/tools/policy"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Tool parameter limits to prevent resource exhaustion.
const (
	MaxToolNameLength  = 256
	MaxToolParamsSize  = 10 << 20 // 10MB
)

// ToolRegistry manages available tools with thread-safe registration and
// lookup. Tools are registered by name and retrieved for execution
// during conversation steps.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool

	schemaCache sync.Map // tool name -> *jsonschema.Schema
}

// NewToolRegistry creates an empty tool registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

// Register adds a tool to the registry, replacing any existing tool of
// the same name.
func (r *ToolRegistry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
	r.schemaCache.Delete(tool.Name())
}

// Unregister removes a tool from the registry by name.
func (r *ToolRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
	r.schemaCache.Delete(name)
}

// Get returns a tool by name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Execute runs a tool by name with the given JSON parameters, returning
// an error ToolResult (not a Go error) for not-found/oversized inputs so
// callers always get something to feed back to the model.
func (r *ToolRegistry) Execute(ctx context.Context, name string, params json.RawMessage) (*ToolResult, error) {
	if len(name) > MaxToolNameLength {
		return &ToolResult{Content: fmt.Sprintf("tool name exceeds maximum length of %d characters", MaxToolNameLength), IsError: true}, nil
	}
	if len(params) > MaxToolParamsSize {
		return &ToolResult{Content: fmt.Sprintf("tool parameters exceed maximum size of %d bytes", MaxToolParamsSize), IsError: true}, nil
	}

	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return &ToolResult{Content: "tool not found: " + name, IsError: true}, nil
	}

	if err := r.validateParams(tool, params); err != nil {
		return &ToolResult{Content: fmt.Sprintf("invalid parameters for tool %q: %s", name, err), IsError: true}, nil
	}

	return tool.Execute(ctx, params)
}

// validateParams checks params against the tool's declared JSON Schema,
// compiling (and caching) it on first use. A tool with an empty or
// unparsable schema is not validated, so hand-rolled tools that skip
// Schema() keep working unchanged.
func (r *ToolRegistry) validateParams(tool Tool, params json.RawMessage) error {
	schema := tool.Schema()
	if len(schema) == 0 {
		return nil
	}

	compiled, err := r.compileSchema(tool.Name(), schema)
	if err != nil {
		return nil
	}

	if len(params) == 0 {
		params = json.RawMessage("{}")
	}
	var decoded any
	if err := json.Unmarshal(params, &decoded); err != nil {
		return fmt.Errorf("params are not valid JSON: %w", err)
	}
	return compiled.Validate(decoded)
}

func (r *ToolRegistry) compileSchema(name string, schema json.RawMessage) (*jsonschema.Schema, error) {
	if cached, ok := r.schemaCache.Load(name); ok {
		return cached.(*jsonschema.Schema), nil
	}
	compiled, err := jsonschema.CompileString(name+".schema.json", string(schema))
	if err != nil {
		return nil, err
	}
	r.schemaCache.Store(name, compiled)
	return compiled, nil
}

// All returns every registered tool, in no particular order.
func (r *ToolRegistry) All() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tools := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		tools = append(tools, t)
	}
	return tools
}

// Specs returns the provider-agnostic ToolSpec for every registered
// tool, filtered by policy if a resolver/policy pair is given.
func (r *ToolRegistry) Specs(resolver *policy.Resolver, toolPolicy *policy.Policy) []ToolSpec {
	tools := filterToolsByPolicy(resolver, toolPolicy, r.All())
	specs := make([]ToolSpec, 0, len(tools))
	for _, t := range tools {
		specs = append(specs, ToolSpec{Name: t.Name(), Description: t.Description(), Schema: t.Schema()})
	}
	return specs
}

func filterToolsByPolicy(resolver *policy.Resolver, toolPolicy *policy.Policy, tools []Tool) []Tool {
	if resolver == nil || toolPolicy == nil {
		return tools
	}
	filtered := make([]Tool, 0, len(tools))
	for _, tool := range tools {
		if resolver.IsAllowed(toolPolicy, tool.Name()) {
			filtered = append(filtered, tool)
		}
	}
	return filtered
}

func normalizeToolName(name string, resolver *policy.Resolver) string {
	if resolver == nil {
		return policy.NormalizeTool(name)
	}
	return resolver.CanonicalName(name)
}

// matchesToolPatterns reports whether toolName matches any of patterns,
// after canonicalizing both sides through resolver. Supports a literal
// "mcp:*" wildcard and trailing ".*" prefix wildcards.
func matchesToolPatterns(patterns []string, toolName string, resolver *policy.Resolver) bool {
	if len(patterns) == 0 {
		return false
	}
	name := normalizeToolName(toolName, resolver)
	for _, pattern := range patterns {
		if matchToolPattern(normalizeToolName(pattern, resolver), name) {
			return true
		}
	}
	return false
}

func matchToolPattern(pattern, toolName string) bool {
	if pattern == "" || toolName == "" {
		return false
	}
	if pattern == "mcp:*" {
		return strings.HasPrefix(toolName, "mcp:")
	}
	if strings.HasSuffix(pattern, ".*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(toolName, prefix)
	}
	return pattern == toolName
}

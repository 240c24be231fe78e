package config

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed definitions
var builtinDefinitions embed.FS

// ToolAccess declares which tools an agent may call. Allowed supports
// wildcard patterns ("*" matches all, a trailing "*" matches a prefix);
// Restricted lists explicit names and always wins over Allowed.
type ToolAccess struct {
	Allowed    []string `yaml:"allowed"`
	Restricted []string `yaml:"restricted,omitempty"`
}

// Definition is the declarative description of an agent type, loaded from a
// markdown file with YAML frontmatter. The markdown body is the system
// prompt template ({{key}} placeholders).
type Definition struct {
	Name         string     `yaml:"name"`
	Description  string     `yaml:"description"`
	Mode         AgentMode  `yaml:"mode"`
	Color        string     `yaml:"color"`
	Tools        ToolAccess `yaml:"tools"`
	MaxTokens    int        `yaml:"max_tokens,omitempty"`
	MaxResults   int        `yaml:"max_results,omitempty"`
	MaxSubAgents int        `yaml:"max_sub_agents,omitempty"`

	// SystemPrompt is the markdown body following the frontmatter.
	SystemPrompt string `yaml:"-"`
}

// DefinitionLoader loads agent definitions, preferring files in dir over the
// embedded built-ins. Parsed definitions are cached per type.
type DefinitionLoader struct {
	dir string

	mu    sync.RWMutex
	cache map[string]*Definition
}

// NewDefinitionLoader creates a loader. dir may be empty to use only the
// embedded built-in definitions.
func NewDefinitionLoader(dir string) *DefinitionLoader {
	return &DefinitionLoader{
		dir:   dir,
		cache: make(map[string]*Definition),
	}
}

// Load returns the definition for the given agent type.
// Fails with ErrDefinitionNotFound or ErrInvalidDefinition.
func (l *DefinitionLoader) Load(agentType string) (*Definition, error) {
	l.mu.RLock()
	if def, ok := l.cache[agentType]; ok {
		l.mu.RUnlock()
		return def, nil
	}
	l.mu.RUnlock()

	data, err := l.read(agentType)
	if err != nil {
		return nil, err
	}

	def, err := ParseDefinition(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDefinition, agentType, err)
	}

	l.mu.Lock()
	l.cache[agentType] = def
	l.mu.Unlock()
	return def, nil
}

// Known returns the agent types with built-in definitions.
func (l *DefinitionLoader) Known() []string {
	entries, err := builtinDefinitions.ReadDir("definitions")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".md"))
	}
	return names
}

func (l *DefinitionLoader) read(agentType string) ([]byte, error) {
	filename := agentType + ".md"
	if l.dir != "" {
		if data, err := os.ReadFile(filepath.Join(l.dir, filename)); err == nil {
			return data, nil
		}
	}
	data, err := builtinDefinitions.ReadFile("definitions/" + filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDefinitionNotFound, agentType)
	}
	return data, nil
}

// ParseDefinition parses a frontmatter + prompt body document into a
// Definition. Environment variables in the frontmatter are expanded with the
// same {{.VAR}} template syntax used for YAML config files.
func ParseDefinition(data []byte) (*Definition, error) {
	front, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}

	var def Definition
	if err := yaml.Unmarshal(ExpandEnv(front), &def); err != nil {
		return nil, fmt.Errorf("failed to parse frontmatter: %w", err)
	}
	def.SystemPrompt = strings.TrimSpace(string(body))

	if err := def.validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

func (d *Definition) validate() error {
	var missing []string
	if d.Name == "" {
		missing = append(missing, "name")
	}
	if d.Description == "" {
		missing = append(missing, "description")
	}
	if d.Mode == "" {
		missing = append(missing, "mode")
	}
	if d.Color == "" {
		missing = append(missing, "color")
	}
	if len(d.Tools.Allowed) == 0 && len(d.Tools.Restricted) == 0 {
		missing = append(missing, "tools")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	if !d.Mode.IsValid() {
		return fmt.Errorf("invalid mode: %q", d.Mode)
	}
	if d.MaxSubAgents < 0 {
		return fmt.Errorf("max_sub_agents must be >= 0")
	}
	return nil
}

// splitFrontmatter separates the YAML frontmatter (between "---" fences)
// from the markdown body.
func splitFrontmatter(data []byte) (front, body []byte, err error) {
	text := string(data)
	if !strings.HasPrefix(text, "---\n") && !strings.HasPrefix(text, "---\r\n") {
		return nil, nil, fmt.Errorf("missing frontmatter fence")
	}
	rest := text[strings.Index(text, "\n")+1:]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return nil, nil, fmt.Errorf("unterminated frontmatter fence")
	}
	front = []byte(rest[:end])
	after := rest[end+len("\n---"):]
	if idx := strings.Index(after, "\n"); idx >= 0 {
		body = []byte(after[idx+1:])
	}
	return front, body, nil
}

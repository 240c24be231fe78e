package tools

// Schemas for the built-in tool catalog. Handlers are registered separately:
// deterministic handlers live in handlers.go, the web search handlers in the
// websearch subpackage, and deployments may override any of them.

// BuiltinSchemas returns the declarative catalog of core tools.
func BuiltinSchemas() []Schema {
	return []Schema{
		{
			Name:        "web_search",
			Description: "Search the web for current information. Returns a list of results with title, url and snippet.",
			Parameters: Parameters{
				Type: "object",
				Properties: map[string]Property{
					"query":      {Type: "string", Description: "The search query"},
					"maxResults": {Type: "number", Description: "Maximum number of results to return"},
				},
				Required: []string{"query"},
			},
		},
		{
			Name:        "search_wikipedia",
			Description: "Search Wikipedia for background information on a topic.",
			Parameters: Parameters{
				Type: "object",
				Properties: map[string]Property{
					"query": {Type: "string", Description: "The topic to look up"},
				},
				Required: []string{"query"},
			},
		},
		{
			Name:        "calculate",
			Description: "Evaluate a basic arithmetic expression (+, -, *, /, parentheses).",
			Parameters: Parameters{
				Type: "object",
				Properties: map[string]Property{
					"expression": {Type: "string", Description: "The expression to evaluate"},
				},
				Required: []string{"expression"},
			},
		},
		{
			Name:        "validate_command",
			Description: "Check a shell command for destructive or irreversible behavior.",
			Parameters: Parameters{
				Type: "object",
				Properties: map[string]Property{
					"command": {Type: "string", Description: "The shell command to validate"},
				},
				Required: []string{"command"},
			},
		},
		{
			Name:        "lookup_manpage",
			Description: "Look up the summary of a man page for a command.",
			Parameters: Parameters{
				Type: "object",
				Properties: map[string]Property{
					"command": {Type: "string", Description: "The command name"},
					"section": {Type: "number", Description: "Optional man section"},
				},
				Required: []string{"command"},
			},
		},
		{
			Name:        "search_packages",
			Description: "Search for a package across Linux package repositories.",
			Parameters: Parameters{
				Type: "object",
				Properties: map[string]Property{
					"name":           {Type: "string", Description: "Package name or keyword"},
					"packageManager": {Type: "string", Description: "Restrict to one package manager", Enum: []string{"apt", "dnf", "pacman", "zypper"}},
				},
				Required: []string{"name"},
			},
		},
		{
			Name:        "read_file",
			Description: "Read a file from the assistant's workspace.",
			Parameters: Parameters{
				Type: "object",
				Properties: map[string]Property{
					"path": {Type: "string", Description: "Path relative to the workspace root"},
				},
				Required: []string{"path"},
			},
		},
		{
			Name:        "grep_files",
			Description: "Search workspace files for lines matching a pattern.",
			Parameters: Parameters{
				Type: "object",
				Properties: map[string]Property{
					"pattern": {Type: "string", Description: "Regular expression to match"},
					"glob":    {Type: "string", Description: "Optional filename filter"},
				},
				Required: []string{"pattern"},
			},
		},
		{
			Name:        "ask_user",
			Description: "Ask the user a question with selectable options.",
			Parameters: Parameters{
				Type: "object",
				Properties: map[string]Property{
					"question": {Type: "string", Description: "The question text"},
					"options":  {Type: "array", Description: "Selectable answers", Items: &Property{Type: "string"}},
				},
				Required: []string{"question"},
			},
		},
	}
}

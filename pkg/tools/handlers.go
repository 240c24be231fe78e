package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// RegisterDefaults registers the deterministic built-in handlers. Search
// handlers (web_search, search_wikipedia) are provided by the websearch
// package and registered by the caller; any handler can be overridden by
// re-registering under the same name.
func RegisterDefaults(r *Registry, workspaceRoot string) error {
	handlers := map[string]Handler{
		"calculate":        calculateHandler,
		"validate_command": validateCommandHandler,
		"lookup_manpage":   lookupManpageHandler,
		"search_packages":  searchPackagesHandler,
		"read_file":        readFileHandler(workspaceRoot),
		"grep_files":       grepFilesHandler(workspaceRoot),
		"ask_user":         askUserHandler,
	}
	for _, schema := range BuiltinSchemas() {
		handler, ok := handlers[schema.Name]
		if !ok {
			continue
		}
		if err := r.Register(schema, handler); err != nil {
			return err
		}
	}
	return nil
}

// RegisterSearchSchemas registers the search tool schemas with the given
// handlers (implemented by the websearch package).
func RegisterSearchSchemas(r *Registry, webSearch, wikipedia Handler) error {
	for _, schema := range BuiltinSchemas() {
		switch schema.Name {
		case "web_search":
			if err := r.Register(schema, webSearch); err != nil {
				return err
			}
		case "search_wikipedia":
			if err := r.Register(schema, wikipedia); err != nil {
				return err
			}
		}
	}
	return nil
}

// --- calculate ---

func calculateHandler(_ context.Context, args map[string]any) (any, error) {
	expr, _ := args["expression"].(string)
	value, err := evalExpression(expr)
	if err != nil {
		return nil, err
	}
	return map[string]any{"expression": expr, "result": value}, nil
}

// evalExpression evaluates +, -, *, / and parentheses with standard
// precedence using a small recursive-descent parser.
func evalExpression(expr string) (float64, error) {
	p := &exprParser{input: strings.TrimSpace(expr)}
	value, err := p.parseSum()
	if err != nil {
		return 0, err
	}
	p.skipSpaces()
	if p.pos != len(p.input) {
		return 0, fmt.Errorf("unexpected character at position %d", p.pos)
	}
	return value, nil
}

type exprParser struct {
	input string
	pos   int
}

func (p *exprParser) skipSpaces() {
	for p.pos < len(p.input) && p.input[p.pos] == ' ' {
		p.pos++
	}
}

func (p *exprParser) parseSum() (float64, error) {
	left, err := p.parseProduct()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpaces()
		if p.pos >= len(p.input) {
			return left, nil
		}
		op := p.input[p.pos]
		if op != '+' && op != '-' {
			return left, nil
		}
		p.pos++
		right, err := p.parseProduct()
		if err != nil {
			return 0, err
		}
		if op == '+' {
			left += right
		} else {
			left -= right
		}
	}
}

func (p *exprParser) parseProduct() (float64, error) {
	left, err := p.parseAtom()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpaces()
		if p.pos >= len(p.input) {
			return left, nil
		}
		op := p.input[p.pos]
		if op != '*' && op != '/' {
			return left, nil
		}
		p.pos++
		right, err := p.parseAtom()
		if err != nil {
			return 0, err
		}
		if op == '*' {
			left *= right
		} else {
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left /= right
		}
	}
}

func (p *exprParser) parseAtom() (float64, error) {
	p.skipSpaces()
	if p.pos >= len(p.input) {
		return 0, fmt.Errorf("unexpected end of expression")
	}
	if p.input[p.pos] == '(' {
		p.pos++
		value, err := p.parseSum()
		if err != nil {
			return 0, err
		}
		p.skipSpaces()
		if p.pos >= len(p.input) || p.input[p.pos] != ')' {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return value, nil
	}
	if p.input[p.pos] == '-' {
		p.pos++
		value, err := p.parseAtom()
		if err != nil {
			return 0, err
		}
		return -value, nil
	}
	start := p.pos
	for p.pos < len(p.input) && (p.input[p.pos] == '.' || (p.input[p.pos] >= '0' && p.input[p.pos] <= '9')) {
		p.pos++
	}
	if start == p.pos {
		return 0, fmt.Errorf("expected number at position %d", start)
	}
	return strconv.ParseFloat(p.input[start:p.pos], 64)
}

// --- validate_command ---

// destructivePatterns are commands blocked outright. The reason is surfaced
// to the validator agent which moves the command to its blocked list.
var destructivePatterns = []struct {
	pattern *regexp.Regexp
	reason  string
}{
	{regexp.MustCompile(`rm\s+(-[a-zA-Z]*r[a-zA-Z]*f|-[a-zA-Z]*f[a-zA-Z]*r)\s+/\s*($|[;&|])|rm\s+-rf\s+/\s*$`), "recursively deletes the filesystem root"},
	{regexp.MustCompile(`\bdd\b.*\bof=/dev/(sd|hd|nvme|vd)`), "writes raw data over a block device"},
	{regexp.MustCompile(`\bmkfs(\.\w+)?\s`), "formats a filesystem, destroying its contents"},
	{regexp.MustCompile(`:\(\)\s*\{\s*:\|:\s*&\s*\}\s*;?\s*:`), "fork bomb"},
	{regexp.MustCompile(`chmod\s+(-[a-zA-Z]*R[a-zA-Z]*\s+)?777\s+/\s*$`), "makes the entire filesystem world-writable"},
	{regexp.MustCompile(`>\s*/dev/(sd|hd|nvme|vd)`), "overwrites a block device"},
	{regexp.MustCompile(`\bshred\b.*/dev/`), "irreversibly wipes a device"},
}

// riskyPatterns produce warnings without blocking.
var riskyPatterns = []struct {
	pattern *regexp.Regexp
	warning string
}{
	{regexp.MustCompile(`\brm\s+-[a-zA-Z]*r`), "recursive deletion, double-check the target path"},
	{regexp.MustCompile(`\bsystemctl\s+(stop|disable|mask)\b`), "stops or disables a system service"},
	{regexp.MustCompile(`\biptables\s+-F\b`), "flushes firewall rules"},
	{regexp.MustCompile(`\bcurl\b.*\|\s*(sudo\s+)?(ba)?sh`), "pipes a remote script into a shell"},
}

func validateCommandHandler(_ context.Context, args map[string]any) (any, error) {
	command, _ := args["command"].(string)
	trimmed := strings.TrimSpace(command)

	for _, p := range destructivePatterns {
		if p.pattern.MatchString(trimmed) {
			return map[string]any{
				"command": command,
				"blocked": true,
				"reason":  p.reason,
			}, nil
		}
	}

	var warnings []string
	for _, p := range riskyPatterns {
		if p.pattern.MatchString(trimmed) {
			warnings = append(warnings, p.warning)
		}
	}

	return map[string]any{
		"command":  command,
		"blocked":  false,
		"warnings": warnings,
	}, nil
}

// --- lookup_manpage ---

// manpageSummaries is a small offline summary table. Deployments replace
// this handler with one backed by a real manpage index.
var manpageSummaries = map[string]string{
	"apt":       "apt - command-line interface for the APT package management system",
	"dnf":       "dnf - command-line package manager for RPM-based distributions",
	"pacman":    "pacman - package manager utility for Arch Linux",
	"zypper":    "zypper - command-line interface to the libzypp package manager",
	"systemctl": "systemctl - control the systemd system and service manager",
	"journalctl": "journalctl - print log entries from the systemd journal",
	"uname":     "uname - print system information",
	"grep":      "grep - print lines that match patterns",
	"rm":        "rm - remove files or directories",
	"dd":        "dd - convert and copy a file",
	"chmod":     "chmod - change file mode bits",
	"ssh":       "ssh - OpenSSH remote login client",
	"nginx":     "nginx - HTTP and reverse proxy server",
}

func lookupManpageHandler(_ context.Context, args map[string]any) (any, error) {
	command, _ := args["command"].(string)
	name := strings.Fields(strings.TrimSpace(command))
	if len(name) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	summary, ok := manpageSummaries[name[0]]
	if !ok {
		return nil, fmt.Errorf("no manual entry for %s", name[0])
	}
	return map[string]any{"command": name[0], "summary": summary}, nil
}

// --- search_packages ---

// packageIndex maps well-known packages to their names per package manager.
var packageIndex = map[string]map[string]string{
	"nginx":        {"apt": "nginx", "dnf": "nginx", "pacman": "nginx", "zypper": "nginx"},
	"docker":       {"apt": "docker.io", "dnf": "moby-engine", "pacman": "docker", "zypper": "docker"},
	"build tools":  {"apt": "build-essential", "dnf": "gcc make", "pacman": "base-devel", "zypper": "patterns-devel-base-devel_basis"},
	"htop":         {"apt": "htop", "dnf": "htop", "pacman": "htop", "zypper": "htop"},
	"openssh":      {"apt": "openssh-server", "dnf": "openssh-server", "pacman": "openssh", "zypper": "openssh"},
	"postgresql":   {"apt": "postgresql", "dnf": "postgresql-server", "pacman": "postgresql", "zypper": "postgresql-server"},
	"neovim":       {"apt": "neovim", "dnf": "neovim", "pacman": "neovim", "zypper": "neovim"},
}

func searchPackagesHandler(_ context.Context, args map[string]any) (any, error) {
	name, _ := args["name"].(string)
	pm, _ := args["packageManager"].(string)

	key := strings.ToLower(strings.TrimSpace(name))
	entry, ok := packageIndex[key]
	if !ok {
		return map[string]any{"name": name, "found": false}, nil
	}
	if pm != "" {
		return map[string]any{"name": name, "found": true, "packages": map[string]string{pm: entry[pm]}}, nil
	}
	return map[string]any{"name": name, "found": true, "packages": entry}, nil
}

// --- workspace file tools ---

func readFileHandler(root string) Handler {
	return func(_ context.Context, args map[string]any) (any, error) {
		rel, _ := args["path"].(string)
		path, err := resolveWorkspacePath(root, rel)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return map[string]any{"path": rel, "content": string(data)}, nil
	}
}

func grepFilesHandler(root string) Handler {
	return func(_ context.Context, args map[string]any) (any, error) {
		patternStr, _ := args["pattern"].(string)
		glob, _ := args["glob"].(string)
		pattern, err := regexp.Compile(patternStr)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern: %w", err)
		}

		var matches []map[string]any
		err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			if glob != "" {
				if ok, _ := filepath.Match(glob, d.Name()); !ok {
					return nil
				}
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return nil
			}
			for i, line := range strings.Split(string(data), "\n") {
				if pattern.MatchString(line) {
					rel, _ := filepath.Rel(root, path)
					matches = append(matches, map[string]any{"file": rel, "line": i + 1, "text": line})
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{"matches": matches}, nil
	}
}

func resolveWorkspacePath(root, rel string) (string, error) {
	if root == "" {
		return "", fmt.Errorf("no workspace configured")
	}
	path := filepath.Join(root, rel)
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if absPath != absRoot && !strings.HasPrefix(absPath, absRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes workspace: %s", rel)
	}
	return absPath, nil
}

// --- ask_user ---

// askUserHandler exists so the schema is dispatchable; interactive questions
// go through the agent question protocol, not the tool loop.
func askUserHandler(_ context.Context, _ map[string]any) (any, error) {
	return nil, fmt.Errorf("ask_user must be routed through the question protocol")
}

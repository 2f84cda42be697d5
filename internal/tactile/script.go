package tactile

import (
	"bytes"
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/printer"
	"go/token"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"codeprompt/internal/logging"
	"codeprompt/internal/vars"
)

// =============================================================================
// YAEGI SCRIPT EXECUTOR
// =============================================================================
// A script fragment is a Go function body. It is wrapped into
//
//	func fragment() any { <context locals>; { <body> }; return nil }
//
// inside a generated package main, interpreted with yaegi and called once.
// The returned value lands under the "result" key. Context values are
// visible as typed locals and through cp.Vars; cp.Set publishes extra keys.

// autoImport maps a package name to its import path and a symbol used to
// keep the import alive when the body only mentions it in passing.
type autoImport struct {
	path   string
	anchor string
	pure   bool // allowed in restricted mode
}

var autoImports = map[string]autoImport{
	"fmt":      {"fmt", "Sprint", true},
	"strings":  {"strings", "TrimSpace", true},
	"strconv":  {"strconv", "Itoa", true},
	"time":     {"time", "Now", true},
	"json":     {"encoding/json", "Marshal", true},
	"filepath": {"path/filepath", "Join", true},
	"sort":     {"sort", "Strings", true},
	"bytes":    {"bytes", "NewBuffer", true},
	"regexp":   {"regexp", "MustCompile", true},
	"math":     {"math", "Abs", true},
	"errors":   {"errors", "New", true},
	"context":  {"context", "Background", true},
	"os":       {"os", "Getenv", false},
	"exec":     {"os/exec", "Command", false},
}

// restrictedPackages is the import allowlist when scripts are restricted.
var restrictedPackages = map[string]bool{
	"strings":         true,
	"strconv":         true,
	"fmt":             true,
	"math":            true,
	"regexp":          true,
	"encoding/json":   true,
	"encoding/base64": true,
	"time":            true,
	"sort":            true,
	"bytes":           true,
	"path":            true,
	"path/filepath":   true,
	"errors":          true,
	"context":         true,

	// EXPLICITLY BLOCKED: os, os/exec, net, net/http, syscall, unsafe
}

// reservedNames can never be injected as context locals.
var reservedNames = map[string]bool{
	"cp": true, "fragment": true, "Run": true, "main": true,
	"any": true, "append": true, "bool": true, "byte": true, "cap": true,
	"clear": true, "close": true, "comparable": true, "complex": true,
	"complex64": true, "complex128": true, "copy": true, "delete": true,
	"error": true, "false": true, "float32": true, "float64": true,
	"imag": true, "int": true, "int8": true, "int16": true, "int32": true,
	"int64": true, "iota": true, "len": true, "make": true, "max": true,
	"min": true, "new": true, "nil": true, "panic": true, "print": true,
	"println": true, "real": true, "recover": true, "rune": true,
	"string": true, "true": true, "uint": true, "uint8": true,
	"uint16": true, "uint32": true, "uint64": true, "uintptr": true,
}

var pkgRefPattern = regexp.MustCompile(`\b([a-z]+)\.[A-Z]`)

// ScriptExecutor executes Go fragment bodies with the yaegi interpreter.
type ScriptExecutor struct {
	unrestricted bool
	shell        *ShellExecutor
	querier      Querier
	stdout       io.Writer
	stderr       io.Writer
}

// ScriptOption configures a ScriptExecutor.
type ScriptOption func(*ScriptExecutor)

// WithShell lets scripts spawn commands through cp.Spawn.
func WithShell(shell *ShellExecutor) ScriptOption {
	return func(se *ScriptExecutor) { se.shell = shell }
}

// WithQuerier wires cp.QueryLLM and cp.QueryContext.
func WithQuerier(q Querier) ScriptOption {
	return func(se *ScriptExecutor) { se.querier = q }
}

// NewScriptExecutor creates a new yaegi-based script executor.
func NewScriptExecutor(config ExecutorConfig, opts ...ScriptOption) *ScriptExecutor {
	se := &ScriptExecutor{
		unrestricted: config.Unrestricted,
		stdout:       config.Stdout,
		stderr:       config.Stderr,
	}
	if se.stdout == nil {
		se.stdout = os.Stdout
	}
	if se.stderr == nil {
		se.stderr = os.Stderr
	}
	for _, opt := range opts {
		opt(se)
	}
	return se
}

// Name returns the executor name.
func (se *ScriptExecutor) Name() string { return "script" }

// Execute interprets body and returns {"result": value} plus any keys the
// fragment published with cp.Set. Compile errors, panics and cancellation
// are returned as errors.
func (se *ScriptExecutor) Execute(ctx context.Context, v vars.Map, body string) (vars.Map, error) {
	timer := logging.StartTimer(logging.CategoryScript, "Script fragment execution")
	defer timer.Stop()

	imports, code := hoistImports(body)
	if !se.unrestricted {
		if err := validateImports(imports); err != nil {
			return nil, fmt.Errorf("invalid imports: %w", err)
		}
	}

	caps := newCapabilities(ctx, se, v)
	src := se.wrapCode(imports, code, v)
	logging.ScriptDebug("Generated source:\n%s", src)

	i := interp.New(interp.Options{
		Stdout:       se.stdout,
		Stderr:       se.stderr,
		Env:          os.Environ(),
		Unrestricted: se.unrestricted,
	})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("failed to load stdlib: %w", err)
	}
	if err := i.Use(caps.exports()); err != nil {
		return nil, fmt.Errorf("failed to load capabilities: %w", err)
	}

	if _, err := i.EvalWithContext(ctx, src); err != nil {
		logging.Get(logging.CategoryScript).Warn("Script compilation failed: %v", err)
		return nil, err
	}
	if _, err := i.EvalWithContext(ctx, "main.Run()"); err != nil {
		logging.Get(logging.CategoryScript).Warn("Script execution failed: %v", err)
		return nil, err
	}

	caps.mu.Lock()
	defer caps.mu.Unlock()
	out := caps.written.Clone()
	out[vars.KeyResult] = caps.result
	logging.Script("Script fragment returned %T", caps.result)
	return out, nil
}

// wrapCode generates the package main source for a fragment body.
func (se *ScriptExecutor) wrapCode(imports []string, code string, v vars.Map) string {
	var sb strings.Builder
	sb.WriteString("package main\n\n")
	sb.WriteString("import \"" + capabilityImportPath + "\"\n")

	hoisted := strings.Join(imports, "\n")
	taken := importNames(imports)
	var anchors []string
	for _, name := range referencedPackages(code) {
		ai := autoImports[name]
		if !se.unrestricted && !ai.pure {
			continue
		}
		if strings.Contains(hoisted, `"`+ai.path+`"`) {
			continue
		}
		sb.WriteString("import \"" + ai.path + "\"\n")
		anchors = append(anchors, "var _ = "+name+"."+ai.anchor+"\n")
	}
	for _, spec := range imports {
		sb.WriteString("import " + spec + "\n")
	}

	sb.WriteString("\nvar _ = cp.Vars\n")
	for _, a := range anchors {
		sb.WriteString(a)
	}

	sb.WriteString("\nfunc fragment() any {\n")
	for _, key := range v.Keys() {
		if !injectable(key, taken) {
			continue
		}
		sb.WriteString(fmt.Sprintf("\t%s := cp.Vars[%q]%s\n\t_ = %s\n", key, key, typeAssertion(v[key]), key))
	}
	sb.WriteString("\t{\n")
	sb.WriteString(code)
	if !strings.HasSuffix(code, "\n") {
		sb.WriteString("\n")
	}
	sb.WriteString("\t}\n\treturn nil\n}\n\n")
	sb.WriteString("func Run() {\n\tcp.Commit(fragment())\n}\n")
	return boxReturns(sb.String())
}

// boxReturns rewrites every "return e" of fragment() into "return any(e)".
// The interpreter cannot return an untyped constant expression such as
// "x > 3" through an interface result without the explicit conversion.
// Returns inside function literals belong to those literals and are left
// alone. Source that does not parse is returned unchanged so the
// interpreter reports the error.
func boxReturns(src string) string {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "fragment.go", src, parser.ParseComments)
	if err != nil {
		return src
	}

	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Name.Name != "fragment" || fn.Recv != nil || fn.Body == nil {
			continue
		}
		ast.Inspect(fn.Body, func(n ast.Node) bool {
			switch n := n.(type) {
			case *ast.FuncLit:
				return false
			case *ast.ReturnStmt:
				if len(n.Results) == 1 && !isNil(n.Results[0]) && !isAnyConversion(n.Results[0]) {
					n.Results[0] = &ast.CallExpr{Fun: ast.NewIdent("any"), Args: []ast.Expr{n.Results[0]}}
				}
			}
			return true
		})
	}

	var buf bytes.Buffer
	if err := printer.Fprint(&buf, fset, file); err != nil {
		return src
	}
	return buf.String()
}

func isNil(e ast.Expr) bool {
	id, ok := e.(*ast.Ident)
	return ok && id.Name == "nil"
}

func isAnyConversion(e ast.Expr) bool {
	call, ok := e.(*ast.CallExpr)
	if !ok || len(call.Args) != 1 {
		return false
	}
	id, ok := call.Fun.(*ast.Ident)
	return ok && id.Name == "any"
}

// injectable reports whether a context key can become a local variable.
func injectable(key string, taken map[string]bool) bool {
	if !token.IsIdentifier(key) || key == "_" || reservedNames[key] || taken[key] {
		return false
	}
	_, ok := autoImports[key]
	return !ok
}

// importNames returns the package names bound by hoisted import specs:
// the alias when present, otherwise the last path element.
func importNames(specs []string) map[string]bool {
	names := make(map[string]bool)
	for _, spec := range specs {
		fields := strings.Fields(spec)
		if len(fields) == 0 {
			continue
		}
		if len(fields) > 1 {
			names[fields[0]] = true
			continue
		}
		path := strings.Trim(fields[0], `"`)
		names[path[strings.LastIndex(path, "/")+1:]] = true
	}
	return names
}

func typeAssertion(val any) string {
	switch val.(type) {
	case string:
		return ".(string)"
	case bool:
		return ".(bool)"
	case int:
		return ".(int)"
	case int64:
		return ".(int64)"
	case float64:
		return ".(float64)"
	default:
		return ""
	}
}

// referencedPackages returns the auto-importable package names used as
// qualifiers in code, sorted.
func referencedPackages(code string) []string {
	seen := make(map[string]bool)
	for _, m := range pkgRefPattern.FindAllStringSubmatch(code, -1) {
		if _, ok := autoImports[m[1]]; ok {
			seen[m[1]] = true
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// hoistImports pulls import declarations out of a fragment body. It returns
// the import specs (e.g. `"strings"`, `str "strings"`) and the remaining code.
func hoistImports(body string) ([]string, string) {
	var specs []string
	var kept []string

	inImportBlock := false
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)

		switch {
		case inImportBlock && strings.HasPrefix(trimmed, ")"):
			inImportBlock = false
		case inImportBlock:
			if trimmed != "" && !strings.HasPrefix(trimmed, "//") {
				specs = append(specs, trimmed)
			}
		case strings.HasPrefix(trimmed, "import ("):
			inImportBlock = true
		case strings.HasPrefix(trimmed, "import "):
			specs = append(specs, strings.TrimSpace(strings.TrimPrefix(trimmed, "import ")))
		default:
			kept = append(kept, line)
		}
	}

	return specs, strings.Join(kept, "\n")
}

// validateImports checks that the hoisted imports are on the allowlist.
func validateImports(specs []string) error {
	var forbidden []string
	for _, spec := range specs {
		fields := strings.Fields(spec)
		if len(fields) == 0 {
			continue
		}
		pkg := strings.Trim(fields[len(fields)-1], `"`)
		if !restrictedPackages[pkg] {
			forbidden = append(forbidden, pkg)
		}
	}

	if len(forbidden) > 0 {
		return fmt.Errorf("forbidden imports detected: %v (allowed: %v)", forbidden, allowedPackages())
	}
	return nil
}

// allowedPackages returns the allowlist for error messages.
func allowedPackages() []string {
	var pkgs []string
	for pkg := range restrictedPackages {
		pkgs = append(pkgs, pkg)
	}
	sort.Strings(pkgs)
	return pkgs
}

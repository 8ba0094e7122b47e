package route

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/tidwall/gjson"
	"github.com/tollgate-io/tollgate/internal/middleware/bodycache"
)

// FallbackMode controls how the BodyValue predicate behaves when no body
// was cached for the request.
type FallbackMode string

const (
	// FallbackPermissive matches when no body is available. This preserves
	// the legacy behavior for bodiless methods.
	FallbackPermissive FallbackMode = "permissive"
	// FallbackStrict refuses to match without a cached body.
	FallbackStrict FallbackMode = "strict"
)

// CompileOptions carries table-wide predicate settings.
type CompileOptions struct {
	BodyFallback FallbackMode
}

// Predicate decides whether a candidate route applies to a request.
type Predicate interface {
	Matches(r *http.Request) bool
}

// compilePredicate builds a Predicate from its stored definition. Unknown
// names and bad arguments are compile errors, surfaced at save time and at
// table load.
func compilePredicate(spec Spec, opts CompileOptions) (Predicate, error) {
	switch strings.ToLower(spec.Name) {
	case "path":
		pattern := spec.Arg("pattern")
		if pattern == "" {
			return nil, fmt.Errorf("Path predicate requires a pattern argument")
		}
		if !strings.HasPrefix(pattern, "/") {
			return nil, fmt.Errorf("Path pattern %q must start with /", pattern)
		}
		if prefix, ok := strings.CutSuffix(pattern, "/**"); ok {
			return &pathPredicate{prefix: prefix}, nil
		}
		return &pathPredicate{exact: pattern}, nil

	case "method":
		raw := spec.Arg("method")
		if raw == "" {
			raw = spec.Arg("methods")
		}
		if raw == "" {
			return nil, fmt.Errorf("Method predicate requires a method argument")
		}
		methods := make(map[string]bool)
		for _, m := range strings.Split(raw, ",") {
			methods[strings.ToUpper(strings.TrimSpace(m))] = true
		}
		return &methodPredicate{methods: methods}, nil

	case "header":
		name := spec.Arg("name")
		if name == "" {
			return nil, fmt.Errorf("Header predicate requires a name argument")
		}
		return &headerPredicate{name: name, value: spec.Arg("value")}, nil

	case "bodyvalue":
		expected, ok := spec.Args["value"]
		if !ok {
			return nil, fmt.Errorf("BodyValue predicate requires a value argument")
		}
		return &bodyValuePredicate{
			expected: expected,
			exact:    spec.Arg("exact") == "true",
			strict:   opts.BodyFallback == FallbackStrict,
		}, nil

	case "expr":
		src := spec.Arg("expression")
		if src == "" {
			return nil, fmt.Errorf("Expr predicate requires an expression argument")
		}
		program, err := expr.Compile(src, expr.Env(ExprEnv{}), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("Expr predicate: failed to compile expression: %w", err)
		}
		return &exprPredicate{program: program}, nil

	default:
		return nil, fmt.Errorf("unknown predicate %q", spec.Name)
	}
}

// pathPredicate matches the request path exactly or by prefix ("/api/**").
type pathPredicate struct {
	exact  string
	prefix string
}

func (p *pathPredicate) Matches(r *http.Request) bool {
	if p.exact != "" {
		return r.URL.Path == p.exact
	}
	return r.URL.Path == p.prefix || strings.HasPrefix(r.URL.Path, p.prefix+"/")
}

// methodPredicate matches the request method against an allowed set.
type methodPredicate struct {
	methods map[string]bool
}

func (p *methodPredicate) Matches(r *http.Request) bool {
	return p.methods[r.Method]
}

// headerPredicate matches a header by presence or exact value.
type headerPredicate struct {
	name  string
	value string
}

func (p *headerPredicate) Matches(r *http.Request) bool {
	got := r.Header.Get(p.name)
	if p.value == "" {
		return got != ""
	}
	return got == p.value
}

// bodyValuePredicate matches against the captured request body. The default
// form is a literal containment check for "value":"<expected>"; exact mode
// parses the body and compares the top-level value field structurally.
type bodyValuePredicate struct {
	expected string
	exact    bool
	strict   bool
}

func (p *bodyValuePredicate) Matches(r *http.Request) bool {
	body, ok := bodycache.FromContext(r.Context())
	if !ok {
		return !p.strict
	}
	if p.exact {
		return gjson.GetBytes(body.Bytes, "value").String() == p.expected
	}
	return strings.Contains(body.Text(), `"value":"`+p.expected+`"`)
}

// ExprEnv is the expression environment for Expr predicates.
type ExprEnv struct {
	Method   string            `expr:"method"`
	Path     string            `expr:"path"`
	Host     string            `expr:"host"`
	Headers  map[string]string `expr:"headers"`
	Query    map[string]string `expr:"query"`
	ClientIP string            `expr:"client_ip"`
	Body     string            `expr:"body"`
}

// newExprEnv builds an ExprEnv from the current request.
func newExprEnv(r *http.Request) ExprEnv {
	headers := make(map[string]string, len(r.Header))
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}

	query := make(map[string]string)
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			query[k] = v[0]
		}
	}

	var bodyText string
	if body, ok := bodycache.FromContext(r.Context()); ok {
		bodyText = body.Text()
	}

	return ExprEnv{
		Method:   r.Method,
		Path:     r.URL.Path,
		Host:     r.Host,
		Headers:  headers,
		Query:    query,
		ClientIP: clientIP(r),
		Body:     bodyText,
	}
}

// clientIP mirrors the rate limiter's key derivation: first X-Forwarded-For
// entry, else the peer host.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); strings.TrimSpace(xff) != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// exprPredicate evaluates a compiled boolean expression over the request.
type exprPredicate struct {
	program *vm.Program
}

func (p *exprPredicate) Matches(r *http.Request) bool {
	out, err := expr.Run(p.program, newExprEnv(r))
	if err != nil {
		return false
	}
	matched, ok := out.(bool)
	return ok && matched
}

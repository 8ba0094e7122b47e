package route

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// Filter is a transformation applied to the outbound request only when its
// route is selected.
type Filter interface {
	Apply(outbound *http.Request, original *http.Request)
}

// compileFilter builds a Filter from its stored definition.
func compileFilter(spec Spec) (Filter, error) {
	switch strings.ToLower(spec.Name) {
	case "rewritepath":
		from := spec.Arg("from")
		to := spec.Args["to"]
		if from == "" {
			return nil, fmt.Errorf("RewritePath filter requires a from argument")
		}
		re, err := regexp.Compile(from)
		if err != nil {
			return nil, fmt.Errorf("RewritePath filter: invalid pattern %q: %w", from, err)
		}
		return &rewritePathFilter{pattern: re, replacement: to}, nil

	case "setrequestheader":
		name := spec.Arg("name")
		if name == "" {
			return nil, fmt.Errorf("SetRequestHeader filter requires a name argument")
		}
		return &setHeaderFilter{name: name, value: spec.Args["value"]}, nil

	case "removerequestheader":
		name := spec.Arg("name")
		if name == "" {
			return nil, fmt.Errorf("RemoveRequestHeader filter requires a name argument")
		}
		return &removeHeaderFilter{name: name}, nil

	case "preserveauthorization":
		return &preserveAuthorizationFilter{}, nil

	default:
		return nil, fmt.Errorf("unknown filter %q", spec.Name)
	}
}

// rewritePathFilter rewrites the outbound path by regex replacement.
type rewritePathFilter struct {
	pattern     *regexp.Regexp
	replacement string
}

func (f *rewritePathFilter) Apply(outbound *http.Request, _ *http.Request) {
	outbound.URL.Path = f.pattern.ReplaceAllString(outbound.URL.Path, f.replacement)
	outbound.URL.RawPath = ""
}

// setHeaderFilter sets a header on the outbound request.
type setHeaderFilter struct {
	name  string
	value string
}

func (f *setHeaderFilter) Apply(outbound *http.Request, _ *http.Request) {
	outbound.Header.Set(f.name, f.value)
}

// removeHeaderFilter strips a header from the outbound request.
type removeHeaderFilter struct {
	name string
}

func (f *removeHeaderFilter) Apply(outbound *http.Request, _ *http.Request) {
	outbound.Header.Del(f.name)
}

// preserveAuthorizationFilter re-asserts the client's Authorization header
// on the outbound request, even if an earlier filter removed it.
type preserveAuthorizationFilter struct{}

func (f *preserveAuthorizationFilter) Apply(outbound *http.Request, original *http.Request) {
	if auth := original.Header.Get("Authorization"); auth != "" {
		outbound.Header.Set("Authorization", auth)
	}
}

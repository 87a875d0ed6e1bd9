// Package template implements typed prompt templates.
//
// A Template declares its input variables at construction time. The
// format string and the declared variables are validated against each
// other when the template is built, so a mismatch is caught when a
// template is loaded, not when a request is in flight.
package template

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/groundwork-ai/groundwork/pkg/errs"
)

// Kind identifies what a template is used for.
type Kind string

const (
	KindRAGQuery           Kind = "rag_query"
	KindQuestionGeneration Kind = "question_generation"
	KindResponseEvaluation Kind = "response_evaluation"
	KindReranking          Kind = "reranking"
	KindPodcastGeneration  Kind = "podcast_generation"
)

// ValidKind reports whether k is a known template kind.
func ValidKind(k Kind) bool {
	switch k {
	case KindRAGQuery, KindQuestionGeneration, KindResponseEvaluation,
		KindReranking, KindPodcastGeneration:
		return true
	}
	return false
}

var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// Template is an immutable prompt template with declared variables.
type Template struct {
	kind      Kind
	format    string
	variables []string
}

// New builds a template, validating that the format string's
// placeholders exactly match the declared variables.
func New(kind Kind, format string, variables []string) (*Template, error) {
	if !ValidKind(kind) {
		return nil, errs.Newf(errs.KindValidation, "Template", "New", "unknown template kind %q", kind)
	}
	if strings.TrimSpace(format) == "" {
		return nil, errs.New(errs.KindValidation, "Template", "New", "format string cannot be empty")
	}

	declared := make(map[string]bool, len(variables))
	for _, v := range variables {
		declared[v] = true
	}

	used := make(map[string]bool)
	for _, match := range placeholderPattern.FindAllStringSubmatch(format, -1) {
		used[match[1]] = true
	}

	for name := range used {
		if !declared[name] {
			return nil, errs.Newf(errs.KindValidation, "Template", "New",
				"placeholder {%s} is not a declared variable", name)
		}
	}
	for name := range declared {
		if !used[name] {
			return nil, errs.Newf(errs.KindValidation, "Template", "New",
				"declared variable %q never appears in format string", name)
		}
	}

	sorted := make([]string, 0, len(declared))
	for name := range declared {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	return &Template{kind: kind, format: format, variables: sorted}, nil
}

// MustNew builds a template and panics on error. For compiled-in defaults.
func MustNew(kind Kind, format string, variables []string) *Template {
	t, err := New(kind, format, variables)
	if err != nil {
		panic(err)
	}
	return t
}

// Kind returns the template kind.
func (t *Template) Kind() Kind {
	return t.kind
}

// Variables returns the declared variable names in sorted order.
func (t *Template) Variables() []string {
	out := make([]string, len(t.variables))
	copy(out, t.variables)
	return out
}

// Format substitutes each {name} placeholder. Every declared variable
// must be present in vars.
func (t *Template) Format(vars map[string]string) (string, error) {
	for _, name := range t.variables {
		if _, ok := vars[name]; !ok {
			return "", errs.Newf(errs.KindValidation, "Template", "Format",
				"missing variable %q for %s template", name, t.kind)
		}
	}

	result := placeholderPattern.ReplaceAllStringFunc(t.format, func(match string) string {
		name := match[1 : len(match)-1]
		return vars[name]
	})
	return result, nil
}

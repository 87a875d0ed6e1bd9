// Package conversation layers multi-turn dialogue on top of the search
// service: session-scoped message history, conversational context
// building, question enhancement and per-session token budgeting.
package conversation

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/groundwork-ai/groundwork/pkg/storage"
)

// Context is the conversational state distilled from recent messages.
type Context struct {
	Window        string   `json:"window"`
	Documents     []string `json:"documents,omitempty"`
	Entities      []string `json:"entities,omitempty"`
	Topics        []string `json:"topics,omitempty"`
	MessageCount  int      `json:"message_count"`
	ContextLength int      `json:"context_length"`
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "that": true, "this": true,
	"with": true, "what": true, "which": true, "from": true, "have": true,
	"about": true, "does": true, "how": true, "are": true, "was": true,
	"you": true, "your": true, "can": true, "will": true, "not": true,
}

const (
	maxEntities = 10
	maxTopics   = 5
)

// ContextService distills recent session messages into a Context.
type ContextService struct{}

func NewContextService() *ContextService {
	return &ContextService{}
}

// Build assembles the context window and extracts entities, topics and
// referenced documents from the given messages (oldest first).
func (s *ContextService) Build(messages []*storage.Message) *Context {
	var window strings.Builder
	var allText strings.Builder
	documents := map[string]bool{}

	for i, m := range messages {
		if i > 0 {
			window.WriteString("\n")
		}
		fmt.Fprintf(&window, "%s: %s", m.Role, m.Content)
		allText.WriteString(m.Content)
		allText.WriteString(" ")

		for _, name := range sourceNames(m.Metadata) {
			documents[name] = true
		}
	}

	ctx := &Context{
		Window:       window.String(),
		Entities:     extractEntities(allText.String()),
		Topics:       extractTopics(allText.String()),
		MessageCount: len(messages),
	}
	ctx.ContextLength = len(ctx.Window)

	for name := range documents {
		ctx.Documents = append(ctx.Documents, name)
	}
	sort.Strings(ctx.Documents)
	return ctx
}

// sourceNames pulls document names out of a stored sources metadata
// entry.
func sourceNames(metadata map[string]any) []string {
	raw, present := metadata["sources"]
	if !present {
		return nil
	}
	sources, isList := raw.([]any)
	if !isList {
		return nil
	}

	var names []string
	for _, entry := range sources {
		if m, isMap := entry.(map[string]any); isMap {
			if name, isString := m["name"].(string); isString {
				names = append(names, name)
			}
		}
	}
	return names
}

// extractEntities collects capitalized words in order of first
// appearance. Crude, but entities only hint the query rewriter.
func extractEntities(text string) []string {
	seen := map[string]bool{}
	var entities []string
	for _, word := range strings.Fields(text) {
		word = strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if len(word) < 3 || !unicode.IsUpper([]rune(word)[0]) {
			continue
		}
		if stopwords[strings.ToLower(word)] || seen[word] {
			continue
		}
		seen[word] = true
		entities = append(entities, word)
		if len(entities) == maxEntities {
			break
		}
	}
	return entities
}

// extractTopics returns the most frequent non-stopword terms.
func extractTopics(text string) []string {
	counts := map[string]int{}
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if len(word) < 4 || stopwords[word] {
			continue
		}
		counts[word]++
	}

	topics := make([]string, 0, len(counts))
	for word := range counts {
		topics = append(topics, word)
	}
	sort.Slice(topics, func(i, j int) bool {
		if counts[topics[i]] != counts[topics[j]] {
			return counts[topics[i]] > counts[topics[j]]
		}
		return topics[i] < topics[j]
	})
	if len(topics) > maxTopics {
		topics = topics[:maxTopics]
	}
	return topics
}

// EnhanceQuestion rewrites a question using conversational context. It
// is a pure string transformation: short follow-up questions that lean
// on a pronoun get the leading entities appended as a hint, everything
// else passes through unchanged.
func EnhanceQuestion(question string, ctx *Context) string {
	if ctx == nil || len(ctx.Entities) == 0 {
		return question
	}

	words := strings.Fields(strings.ToLower(question))
	if len(words) > 8 {
		return question
	}
	pronouns := map[string]bool{"it": true, "they": true, "them": true, "this": true, "that": true, "these": true, "those": true}
	leansOnPronoun := false
	for _, w := range words {
		if pronouns[strings.TrimRight(w, ".,;:!?")] {
			leansOnPronoun = true
			break
		}
	}
	if !leansOnPronoun {
		return question
	}

	hint := ctx.Entities
	if len(hint) > 3 {
		hint = hint[:3]
	}
	return fmt.Sprintf("%s (regarding %s)", question, strings.Join(hint, ", "))
}

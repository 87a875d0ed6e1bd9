package search

import "strings"

var connectorWords = map[string]bool{
	"and": true,
	"or":  true,
	"not": true,
}

const trailingPunct = ".,;:!?"

// CleanAnswer normalizes a generated answer: consecutive duplicate
// tokens are collapsed case-insensitively with their punctuation
// preserved, and stray boolean connectors at either end are dropped.
// The operation is idempotent.
func CleanAnswer(answer string) string {
	fields := strings.Fields(answer)
	if len(fields) == 0 {
		return ""
	}

	kept := make([]string, 0, len(fields))
	prevNorm := ""
	for _, tok := range fields {
		core := strings.TrimRight(tok, trailingPunct)
		norm := strings.ToLower(core)
		if norm != "" && norm == prevNorm {
			// Duplicate token: drop it but carry its punctuation onto the
			// kept occurrence.
			suffix := tok[len(core):]
			last := kept[len(kept)-1]
			if suffix != "" && !strings.ContainsAny(last[len(last)-1:], trailingPunct) {
				kept[len(kept)-1] = last + suffix
			}
			continue
		}
		kept = append(kept, tok)
		prevNorm = norm
	}

	for len(kept) > 0 && isConnector(kept[0]) {
		kept = kept[1:]
	}
	for len(kept) > 0 && isConnector(kept[len(kept)-1]) {
		kept = kept[:len(kept)-1]
	}
	return strings.Join(kept, " ")
}

func isConnector(tok string) bool {
	return connectorWords[strings.ToLower(strings.TrimRight(tok, trailingPunct))]
}

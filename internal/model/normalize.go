package model

import "strings"

// NormalizeStringList converts duck-typed extractor output (a bare string, a
// slice of strings, or a JSON-decoded []any) into one typed sequence.
// Inputs are normalized at this boundary so nothing downstream branches on
// shape. Empty and whitespace-only entries are dropped.
func NormalizeStringList(v any) []string {
	var out []string
	appendOne := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}

	switch t := v.(type) {
	case nil:
		return nil
	case string:
		appendOne(t)
	case []string:
		for _, s := range t {
			appendOne(s)
		}
	case []any:
		for _, e := range t {
			if s, ok := e.(string); ok {
				appendOne(s)
			}
		}
	}
	return out
}

// DedupSignals is a read-side helper for consumers of the append-only signal
// arrays: it drops later entries whose kind, text, and source URL repeat an
// earlier one, preserving insertion order. The stored arrays themselves are
// never deduplicated.
func DedupSignals(signals []Signal) []Signal {
	seen := make(map[string]struct{}, len(signals))
	out := make([]Signal, 0, len(signals))
	for _, s := range signals {
		key := string(s.Kind) + "\x00" + s.Text + "\x00" + s.SourceURL
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}

package logging

import "regexp"

// Redactor scrubs credentials from log output. Error messages must never
// leak API keys, so every string attribute passes through here.
type Redactor struct {
	patterns    []*regexp.Regexp
	placeholder string
}

// NewRedactor creates a redactor with the default pattern set.
func NewRedactor() *Redactor {
	return &Redactor{
		patterns:    defaultPatterns(),
		placeholder: "[REDACTED]",
	}
}

func defaultPatterns() []*regexp.Regexp {
	patterns := []string{
		// Anthropic keys (checked before the generic OpenAI prefix)
		`sk-ant-[a-zA-Z0-9-]{40,}`,
		// OpenAI keys
		`sk-[A-Za-z0-9]{20,}`,
		// Google AI keys
		`AIza[a-zA-Z0-9_-]{35}`,
		// GitHub tokens
		`gh[opus]_[A-Za-z0-9]{36}`,
		// AWS access keys
		`AKIA[0-9A-Z]{16}`,
		// Bearer headers
		`(?i)bearer\s+[a-zA-Z0-9._-]{20,}`,
		// Generic key=value credentials
		`(?i)api[_-]?key["'\s:=]+[a-zA-Z0-9_-]{20,}`,
		`(?i)secret["'\s:=]+[a-zA-Z0-9_-]{20,}`,
		`(?i)token["'\s:=]+[a-zA-Z0-9_-]{20,}`,
		`(?i)password["'\s:=]+[^\s"']{8,}`,
	}

	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(p))
	}
	return compiled
}

// Redact replaces credential-shaped substrings with the placeholder.
func (r *Redactor) Redact(input string) string {
	out := input
	for _, pattern := range r.patterns {
		out = pattern.ReplaceAllString(out, r.placeholder)
	}
	return out
}

// AddPattern registers a custom redaction pattern.
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.patterns = append(r.patterns, re)
	return nil
}

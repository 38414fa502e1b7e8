// Package shellformat renders process invocations as copy-pasteable shell
// one-liners for audit logs.
//
// It uses mvdan.cc/sh/v3/syntax (the shfmt quoting rules) so that arguments
// containing spaces, quotes, or control characters are quoted exactly the way
// a POSIX shell needs them.
package shellformat

import (
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Command renders an executable path and its arguments as a single shell
// line. Arguments that cannot be represented in POSIX shell (embedded NUL)
// fall back to Bash quoting; if even that fails the raw string is kept.
func Command(path string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, quote(path))
	for _, arg := range args {
		parts = append(parts, quote(arg))
	}
	return strings.Join(parts, " ")
}

// Env renders KEY=VALUE environment assignments the way they would prefix a
// shell command.
func Env(env []string) string {
	parts := make([]string, 0, len(env))
	for _, kv := range env {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			parts = append(parts, quote(kv))
			continue
		}
		parts = append(parts, key+"="+quote(value))
	}
	return strings.Join(parts, " ")
}

func quote(s string) string {
	if q, err := syntax.Quote(s, syntax.LangPOSIX); err == nil {
		return q
	}
	if q, err := syntax.Quote(s, syntax.LangBash); err == nil {
		return q
	}
	return s
}

package repository

import (
	"errors"
	"strings"
)

// ErrUnsupportedDriver indicates a database driver this build cannot open.
var ErrUnsupportedDriver = errors.New("unsupported database driver")

// EscapeLike escapes LIKE wildcards in s for use with ESCAPE '\'.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// ContainsPattern returns the LIKE pattern matching s anywhere.
// Callers fold both sides in SQL so the match ignores case.
func ContainsPattern(s string) string {
	return "%" + EscapeLike(strings.TrimSpace(s)) + "%"
}

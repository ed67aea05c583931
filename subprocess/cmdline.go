package subprocess

import "strings"

// makeCommandLine joins an argument vector into the single command line
// the handle-based platform's process creation takes, quoted so the
// child's runtime splits it back into the same vector. Kept free of
// build tags so the quoting rules are testable on every platform.
func makeCommandLine(argv []string) string {
	var b strings.Builder
	for i, arg := range argv {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(escapeArg(arg))
	}
	return b.String()
}

// escapeArg quotes one argument: empty arguments and arguments with
// embedded separators or quotes are wrapped in quotes; a backslash run
// is doubled only where it would otherwise change the meaning of a
// following quote.
func escapeArg(s string) string {
	if len(s) > 0 && !strings.ContainsAny(s, " \t\"") {
		return s
	}
	b := make([]byte, 0, len(s)+2)
	b = append(b, '"')
	slashes := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\\':
			slashes++
			b = append(b, c)
		case '"':
			for ; slashes > 0; slashes-- {
				b = append(b, '\\')
			}
			b = append(b, '\\', '"')
		default:
			slashes = 0
			b = append(b, c)
		}
	}
	// Trailing backslashes would otherwise escape the closing quote.
	for ; slashes > 0; slashes-- {
		b = append(b, '\\')
	}
	b = append(b, '"')
	return string(b)
}

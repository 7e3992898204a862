package process

import "strings"

// ShellQuote wraps s in single quotes so a POSIX shell reads it back
// byte for byte. Embedded single quotes become '\''.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// FullCommandQuote renders command followed by its shell-quoted arguments.
// The command token itself is left untouched.
func FullCommandQuote(command string, args []string) string {
	if len(args) == 0 {
		return command
	}
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = ShellQuote(a)
	}
	return command + " " + strings.Join(quoted, " ")
}

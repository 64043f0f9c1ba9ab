// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import "strings"

// QuoteCommand renders argv as a POSIX shell command line that a shell
// would split back into the same arguments. Arguments made only of
// letters, digits, and @%+=:,./-_ are left bare; everything else is
// single-quoted, with embedded single quotes written as '"'"'.
func QuoteCommand(argv []string) string {
	quoted := make([]string, len(argv))
	for i, argument := range argv {
		quoted[i] = quoteArgument(argument)
	}
	return strings.Join(quoted, " ")
}

func quoteArgument(argument string) string {
	if argument == "" {
		return "''"
	}
	if strings.IndexFunc(argument, unsafeRune) < 0 {
		return argument
	}
	return "'" + strings.ReplaceAll(argument, "'", `'"'"'`) + "'"
}

func unsafeRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	case strings.ContainsRune("@%+=:,./-_", r):
		return false
	default:
		return true
	}
}

package config

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// adbValueOptions are adb global options that consume the following word.
var adbValueOptions = map[string]bool{
	"-s": true,
	"-t": true,
	"-H": true,
	"-P": true,
	"-L": true,
}

// parseADBCommand splits an adb.command string into the argv prefix that every
// adb invocation starts with. Words may be quoted with ' or " and single
// characters escaped with a backslash. Only the executable and adb global
// options are accepted, since subcommands are appended per operation.
func parseADBCommand(raw string) ([]string, error) {
	text := strings.TrimSpace(raw)
	switch {
	case text == "":
		return nil, errors.New("adb.command is empty")
	case strings.HasPrefix(text, "#"):
		return nil, fmt.Errorf("adb.command %q starts with '#'; remove the comment marker", raw)
	}

	words, err := splitWords(text)
	if err != nil {
		return nil, fmt.Errorf("adb.command %q: %w", raw, err)
	}
	if strings.HasPrefix(words[0], "-") {
		return nil, fmt.Errorf("adb.command %q must start with the adb executable, not option %q", raw, words[0])
	}

	for i := 1; i < len(words); i++ {
		word := words[i]
		if !strings.HasPrefix(word, "-") {
			return nil, fmt.Errorf("adb.command %q: unexpected argument %q; only adb global options may follow the executable", raw, word)
		}
		if adbValueOptions[word] {
			if i+1 == len(words) {
				return nil, fmt.Errorf("adb.command %q: option %s needs a value", raw, word)
			}
			i++
		}
	}
	return words, nil
}

func splitWords(text string) ([]string, error) {
	var (
		words   []string
		word    strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)

	for _, r := range text {
		if escaped {
			word.WriteRune(r)
			escaped = false
			continue
		}
		if quote != 0 {
			if r == quote {
				quote = 0
			} else {
				word.WriteRune(r)
			}
			continue
		}

		switch {
		case r == '\\':
			escaped, inWord = true, true
		case r == '\'' || r == '"':
			quote, inWord = r, true
		case unicode.IsSpace(r):
			if inWord {
				words = append(words, word.String())
				word.Reset()
				inWord = false
			}
		default:
			word.WriteRune(r)
			inWord = true
		}
	}

	if escaped {
		return nil, errors.New("trailing backslash")
	}
	if quote != 0 {
		return nil, fmt.Errorf("missing closing %c", quote)
	}
	if inWord {
		words = append(words, word.String())
	}
	return words, nil
}

func mustParseADBCommand(raw string) []string {
	argv, err := parseADBCommand(raw)
	if err != nil {
		panic(err)
	}
	return argv
}

package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions.
const maxLevenshteinDistance = 3

// knownKeys lists the valid keys of each config section.
var knownKeys = map[string][]string{
	"storage":   {"bucket", "credentials_file", "endpoint", "normalize_unicode", "prefix"},
	"transfers": {"commit_interval", "delete_concurrency", "session_db", "simple_upload_max_size"},
	"logging":   {"log_format", "log_level"},
	"network":   {"connect_timeout", "data_timeout", "user_agent"},
}

// knownSections is the sorted list of section names.
var knownSections = func() []string {
	s := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		s = append(s, k)
	}

	slices.Sort(s)

	return s
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with suggestions for each one.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	reported := make(map[string]bool)

	for _, key := range md.Undecoded() {
		// An unknown table is reported once, not once per key inside it.
		if _, known := knownKeys[key[0]]; !known {
			if reported[key[0]] {
				continue
			}

			reported[key[0]] = true
		}

		errs = append(errs, unknownKeyError(key))
	}

	return errors.Join(errs...)
}

func unknownKeyError(key toml.Key) error {
	section := key[0]

	keys, ok := knownKeys[section]
	if !ok {
		if len(key) == 1 {
			// A bare top-level key is usually a setting placed outside its section.
			for sec, names := range knownKeys {
				if slices.Contains(names, section) {
					return fmt.Errorf("unknown config key %q: it belongs in the [%s] section", section, sec)
				}
			}
		}

		return withSuggestion(fmt.Sprintf("unknown config section %q", section), section, knownSections)
	}

	return withSuggestion(fmt.Sprintf("unknown config key %q in [%s]", key[len(key)-1], section),
		key[len(key)-1], keys)
}

func withSuggestion(msg, unknown string, known []string) error {
	if s := closestMatch(unknown, known); s != "" {
		return fmt.Errorf("%s, did you mean %q?", msg, s)
	}

	return errors.New(msg)
}

// closestMatch finds the closest known key by Levenshtein distance, or ""
// when none is within maxLevenshteinDistance. Ties go to the first key.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		if d := levenshtein(strings.ToLower(unknown), k); d < bestDist {
			bestDist = d
			best = k
		}
	}

	return best
}

// levenshtein computes the edit distance between two strings using two rows.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}

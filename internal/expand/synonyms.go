package expand

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// defaultSynonyms covers vocabulary common in technical documentation.
// A domain-specific table can be loaded with LoadSynonyms instead.
var defaultSynonyms = map[string][]string{
	"error":    {"failure", "fault"},
	"create":   {"make", "build"},
	"delete":   {"remove", "drop"},
	"update":   {"modify", "change"},
	"read":     {"fetch", "load"},
	"write":    {"store", "save"},
	"database": {"datastore", "db"},
	"query":    {"search", "lookup"},
	"config":   {"configuration", "settings"},
	"document": {"file", "record"},
	"server":   {"service", "host"},
	"vector":   {"embedding"},
	"retries":  {"retry", "backoff"},
	"cache":    {"buffer"},
	"auth":     {"authentication", "login"},
	"start":    {"launch", "boot"},
	"stop":     {"halt", "shutdown"},
	"test":     {"check", "verify"},
	"fast":     {"quick", "rapid"},
	"slow":     {"sluggish", "delayed"},
}

// LoadSynonyms reads a synonym table from a YAML file mapping each word
// to a list of alternatives:
//
//	database: [datastore, db]
//	error: [failure, fault]
//
// Keys are lowercased on load.
func LoadSynonyms(path string) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read synonyms file: %w", err)
	}

	var raw map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse synonyms file: %w", err)
	}

	table := make(map[string][]string, len(raw))
	for word, alts := range raw {
		table[strings.ToLower(word)] = alts
	}
	return table, nil
}

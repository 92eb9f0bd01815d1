package rules

import (
	"embed"
	"encoding/json"
	"fmt"
)

//go:embed dictionaries/*.json
var dictionaryFS embed.FS

// IntensityLevel is one duration bucket (spec.md §4.3).
type IntensityLevel struct {
	Name     string   `json:"name"`
	Min      int64    `json:"min"`
	Max      int64    `json:"max"`
	Prefixes []string `json:"prefixes"`
}

// intentNounsDoc is the on-disk shape of intent_nouns.json.
type intentNounsDoc struct {
	Categories   map[string][]string `json:"categories"`
	Synonyms     map[string]string   `json:"synonyms"`
	IntentEmojis map[string][]string `json:"intent_emojis"`
}

// dictionaries bundles the three static JSON tables (spec.md §4.3) plus the
// small fixed tables (activity keywords, badges, journey bonuses, title
// templates) that the source keeps as curated constants rather than data
// files.
type dictionaries struct {
	intensityLevels      []IntensityLevel
	categories           map[string][]string
	synonyms             map[string]string
	intentEmojis         map[string][]string
	sentimentAdjectives  map[string][]string
}

// loadDictionaries reads the embedded JSON tables once at process startup
// (spec.md §9: "process-wide caches ... modeled as per-process state
// initialized at startup").
func loadDictionaries() (*dictionaries, error) {
	var levels []IntensityLevel
	if err := readJSON("dictionaries/intensity_levels.json", &levels); err != nil {
		return nil, err
	}

	var nouns intentNounsDoc
	if err := readJSON("dictionaries/intent_nouns.json", &nouns); err != nil {
		return nil, err
	}

	var sentiments map[string][]string
	if err := readJSON("dictionaries/sentiment_adjectives.json", &sentiments); err != nil {
		return nil, err
	}

	return &dictionaries{
		intensityLevels:     levels,
		categories:          nouns.Categories,
		synonyms:            nouns.Synonyms,
		intentEmojis:        nouns.IntentEmojis,
		sentimentAdjectives: sentiments,
	}, nil
}

func readJSON(path string, dst any) error {
	b, err := dictionaryFS.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

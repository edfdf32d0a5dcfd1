package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultTickers is the universe ingested when neither arguments nor a universe file name tickers.
var DefaultTickers = []string{
	"VALE3.SA", "PETR4.SA", "ITUB4.SA", "BBDC4.SA", "ABEV3.SA",
	"WEGE3.SA", "BBAS3.SA", "B3SA3.SA", "RENT3.SA", "SUZB3.SA",
}

// Universe is the YAML document accepted by --universe / UNIVERSE_FILE.
//
//	tickers:
//	  - VALE3.SA
//	  - PETR4.SA
type Universe struct {
	Tickers []string `yaml:"tickers"`
}

// LoadUniverse reads a YAML ticker universe. Blank and duplicated entries are dropped,
// first occurrence order is kept.
func LoadUniverse(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read universe: %w", err)
	}
	var u Universe
	if err := yaml.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("parse universe %s: %w", path, err)
	}
	seen := make(map[string]struct{}, len(u.Tickers))
	out := make([]string, 0, len(u.Tickers))
	for _, t := range u.Tickers {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("universe %s lists no tickers", path)
	}
	return out, nil
}

package config

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed games.yaml
var defaultCatalog []byte

// Blinds of a poker table type.
type Blinds struct {
	SmallBlind int64 `yaml:"small_blind" json:"small_blind"`
	BigBlind   int64 `yaml:"big_blind" json:"big_blind"`
}

// GameDef is the configured envelope a game type is played in.
type GameDef struct {
	Type        string            `yaml:"-" json:"type"`
	MinPlayers  int               `yaml:"min_players" json:"min_players"`
	MaxPlayers  int               `yaml:"max_players" json:"max_players"`
	MinBet      int64             `yaml:"min_bet" json:"min_bet"`
	MaxBet      int64             `yaml:"max_bet" json:"max_bet"`
	TurnTimeout time.Duration     `yaml:"turn_timeout" json:"turn_timeout"`
	ForceStart  bool              `yaml:"force_start" json:"force_start"`
	AllowRebuy  bool              `yaml:"allow_rebuy" json:"allow_rebuy"`
	Decisive    bool              `yaml:"decisive" json:"decisive"`
	Formats     []string          `yaml:"formats" json:"formats,omitempty"`
	TableTypes  map[string]Blinds `yaml:"table_types" json:"table_types,omitempty"`
}

// SupportsFormat reports whether the game can be played in the given format.
// Games without an explicit list are 1v1 only.
func (g GameDef) SupportsFormat(format string) bool {
	if len(g.Formats) == 0 {
		return format == "" || format == "1v1"
	}
	for _, f := range g.Formats {
		if f == format {
			return true
		}
	}
	return false
}

// Catalog is the set of playable game types.
type Catalog struct {
	Games map[string]GameDef `yaml:"games"`
}

// Get returns the definition of a game type.
func (c *Catalog) Get(gameType string) (GameDef, bool) {
	g, ok := c.Games[gameType]
	return g, ok
}

// List returns every game definition sorted by type.
func (c *Catalog) List() []GameDef {
	out := make([]GameDef, 0, len(c.Games))
	for _, g := range c.Games {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// LoadCatalog parses the embedded catalog and, when path is set, overlays the
// games defined in that file.
func LoadCatalog(path string) (*Catalog, error) {
	cat, err := ParseCatalog(defaultCatalog)
	if err != nil {
		return nil, fmt.Errorf("default catalog: %w", err)
	}
	if path == "" {
		return cat, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	override, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	for name, g := range override.Games {
		cat.Games[name] = g
	}
	return cat, nil
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, err
	}
	if len(cat.Games) == 0 {
		return nil, fmt.Errorf("no games defined")
	}
	for name, g := range cat.Games {
		g.Type = name
		if g.MinPlayers < 1 || g.MaxPlayers < g.MinPlayers {
			return nil, fmt.Errorf("game %s: invalid player range %d..%d", name, g.MinPlayers, g.MaxPlayers)
		}
		if g.MinBet < 0 || g.MaxBet < g.MinBet {
			return nil, fmt.Errorf("game %s: invalid bet range %d..%d", name, g.MinBet, g.MaxBet)
		}
		if g.TurnTimeout <= 0 {
			g.TurnTimeout = 300 * time.Second
		}
		cat.Games[name] = g
	}
	return &cat, nil
}

package tuning

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	DecisionTickMs int `yaml:"decision_tick_ms"`

	// Share (permille) of chunk partitions the shell walk visits before it settles for
	// the first candidate found.
	ShellCutoffPermille int `yaml:"shell_cutoff_permille"`

	// Chunk sections scanned per decision tick; the rest wait for the next tick.
	ScanBudgetPerTick int `yaml:"scan_budget_per_tick"`
	NearestPreview    int `yaml:"nearest_preview"`
	MaxQueue          int `yaml:"max_queue"`

	FeedLog FeedLog `yaml:"feed_log"`
	IndexDB IndexDB `yaml:"index_db"`
}

type FeedLog struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

type IndexDB struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

func Defaults() Tuning {
	return Tuning{
		DecisionTickMs:      250,
		ShellCutoffPermille: 500,
		ScanBudgetPerTick:   16,
		NearestPreview:      3,
		MaxQueue:            256,
		FeedLog:             FeedLog{Enabled: true, Dir: "feed"},
		IndexDB:             IndexDB{Enabled: true, Path: "index.db"},
	}
}

// Load reads a tuning file; fields left out keep their default value.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.DecisionTickMs <= 0 {
		return fmt.Errorf("decision_tick_ms must be positive, got %d", t.DecisionTickMs)
	}
	if t.ShellCutoffPermille < 0 || t.ShellCutoffPermille > 1000 {
		return fmt.Errorf("shell_cutoff_permille must be in [0,1000], got %d", t.ShellCutoffPermille)
	}
	if t.ScanBudgetPerTick <= 0 {
		return fmt.Errorf("scan_budget_per_tick must be positive, got %d", t.ScanBudgetPerTick)
	}
	if t.MaxQueue <= 0 {
		return fmt.Errorf("max_queue must be positive, got %d", t.MaxQueue)
	}
	return nil
}

func (t Tuning) DecisionTick() time.Duration {
	return time.Duration(t.DecisionTickMs) * time.Millisecond
}

package taxonomy

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

type Taxonomy struct {
	Sectors         []Sector `yaml:"sectors"`
	NoiseKeywords   []string `yaml:"noise_keywords"`
	ExcludedSectors []string `yaml:"excluded_sectors"`
}

type Sector struct {
	Name       string   `yaml:"name"`
	SubSectors []string `yaml:"sub_sectors"`
}

// Default returns the built-in sector map and noise list.
func Default() *Taxonomy {
	t, err := parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded taxonomy is invalid: %v", err))
	}
	return t
}

// Load reads a taxonomy file. An empty path yields the defaults. Sections
// missing from the file fall back to their default values.
func Load(path string) (*Taxonomy, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy: %w", err)
	}
	t, err := parse(data)
	if err != nil {
		return nil, err
	}
	def := Default()
	if len(t.Sectors) == 0 {
		t.Sectors = def.Sectors
	}
	if t.NoiseKeywords == nil {
		t.NoiseKeywords = def.NoiseKeywords
	}
	if t.ExcludedSectors == nil {
		t.ExcludedSectors = def.ExcludedSectors
	}
	return t, nil
}

func parse(data []byte) (*Taxonomy, error) {
	var t Taxonomy
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse taxonomy yaml: %w", err)
	}
	for i, s := range t.Sectors {
		if strings.TrimSpace(s.Name) == "" {
			return nil, fmt.Errorf("taxonomy sector %d has no name", i)
		}
	}
	return &t, nil
}

// Prompt renders the sector map the way the classifier prompt expects it.
func (t *Taxonomy) Prompt() string {
	var b strings.Builder
	b.WriteString("【一级大类】 -> 【二级细分 (Sub-Sector)】\n")
	for i, s := range t.Sectors {
		fmt.Fprintf(&b, "%d. %s -> [%s]\n", i+1, s.Name, strings.Join(s.SubSectors, ", "))
	}
	return b.String()
}

// Excluded reports whether a sector label is left out of briefs.
func (t *Taxonomy) Excluded(sector string) bool {
	sector = strings.TrimSpace(sector)
	if sector == "" {
		return true
	}
	for _, ex := range t.ExcludedSectors {
		if ex == sector {
			return true
		}
	}
	return false
}

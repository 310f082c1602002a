package risk

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile holds the scoring thresholds and keyword lists. Values are in the
// requisition's own currency and unit.
type Profile struct {
	HighValue       float64  `yaml:"high_value"`
	ElevatedValue   float64  `yaml:"elevated_value"`
	ModerateValue   float64  `yaml:"moderate_value"`
	UnitPrice       float64  `yaml:"unit_price"`
	Quantity        float64  `yaml:"quantity"`
	HighRiskWords   []string `yaml:"high_risk_materials"`
	RestrictedWords []string `yaml:"restricted_plants"`
}

var (
	defaultHighRiskMaterials = []string{"HAZMAT", "CHEM", "CHEMICAL", "EXPLOSIVE", "RADIOACTIVE", "BIOHAZARD", "TOXIC"}
	defaultRestrictedPlants  = []string{"NUCLEAR", "DEFENSE", "WEAPONS", "CLASSIFIED"}
)

func ProductionProfile() Profile {
	return Profile{
		HighValue:       50_000,
		ElevatedValue:   10_000,
		ModerateValue:   5_000,
		UnitPrice:       5_000,
		Quantity:        500,
		HighRiskWords:   append([]string(nil), defaultHighRiskMaterials...),
		RestrictedWords: append([]string(nil), defaultRestrictedPlants...),
	}
}

// DemoProfile uses tiny thresholds so every seeded mock requisition lands in
// the medium band and waits for a manual decision. ProductionProfile spreads
// the same seeds over low and medium.
func DemoProfile() Profile {
	p := ProductionProfile()
	p.HighValue, p.ElevatedValue, p.ModerateValue = 100, 50, 20
	p.UnitPrice, p.Quantity = 10, 5
	return p
}

// LoadProfile reads a YAML profile; unset fields fall back to base.
func LoadProfile(path string, base Profile) (Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read risk profile: %w", err)
	}
	p := base
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &p); err != nil {
		return Profile{}, fmt.Errorf("parse risk profile: %w", err)
	}
	p.HighRiskWords = upper(p.HighRiskWords)
	p.RestrictedWords = upper(p.RestrictedWords)
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

func (p Profile) Validate() error {
	if p.ModerateValue <= 0 || p.UnitPrice <= 0 || p.Quantity <= 0 {
		return errors.New("risk profile thresholds must be positive")
	}
	if !(p.ModerateValue < p.ElevatedValue && p.ElevatedValue < p.HighValue) {
		return fmt.Errorf("risk profile value thresholds must increase: moderate %.2f < elevated %.2f < high %.2f",
			p.ModerateValue, p.ElevatedValue, p.HighValue)
	}
	return nil
}

func upper(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

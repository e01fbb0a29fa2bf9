package dialog

import (
	"fmt"
	"os"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

// Carrier is a delivery service the buyer can pick, with the shape of the
// branch/postcode detail it needs.
type Carrier struct {
	Code        string `yaml:"code" json:"code"`
	Name        string `yaml:"name" json:"name"`
	DetailLabel string `yaml:"detail_label" json:"detail_label"`
	Pattern     string `yaml:"pattern" json:"pattern"`

	re *regexp.Regexp
}

// Valid reports whether detail matches the carrier's pattern.
func (c Carrier) Valid(detail string) bool {
	if c.re == nil {
		return detail != ""
	}
	return c.re.MatchString(detail)
}

// Carriers is keyed by code.
type Carriers map[string]Carrier

// Lookup returns the carrier for code.
func (cs Carriers) Lookup(code string) (Carrier, bool) {
	c, ok := cs[code]
	return c, ok
}

// Codes returns carrier codes sorted.
func (cs Carriers) Codes() []string {
	out := make([]string, 0, len(cs))
	for code := range cs {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// DefaultCarriers are used when no carriers file is configured.
func DefaultCarriers() Carriers {
	cs, err := compile([]Carrier{
		{Code: "nova_poshta", Name: "Nova Poshta", DetailLabel: "branch number", Pattern: `^\d{1,5}$`},
		{Code: "ukrposhta", Name: "Ukrposhta", DetailLabel: "postcode", Pattern: `^\d{5}$`},
		{Code: "meest", Name: "Meest", DetailLabel: "branch number", Pattern: `^\d{1,6}$`},
	})
	if err != nil {
		panic(err)
	}
	return cs
}

type carriersFile struct {
	Carriers []Carrier `yaml:"carriers"`
}

// LoadCarriers reads a YAML carrier catalogue. An empty path yields the defaults.
func LoadCarriers(path string) (Carriers, error) {
	if path == "" {
		return DefaultCarriers(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read carriers file: %w", err)
	}
	return ParseCarriers(data)
}

// ParseCarriers decodes a YAML carrier catalogue.
func ParseCarriers(data []byte) (Carriers, error) {
	var f carriersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode carriers: %w", err)
	}
	if len(f.Carriers) == 0 {
		return nil, fmt.Errorf("carriers file declares no carriers")
	}
	return compile(f.Carriers)
}

func compile(list []Carrier) (Carriers, error) {
	out := make(Carriers, len(list))
	for _, c := range list {
		if c.Code == "" {
			return nil, fmt.Errorf("carrier without code")
		}
		if _, dup := out[c.Code]; dup {
			return nil, fmt.Errorf("duplicate carrier %q", c.Code)
		}
		if c.Pattern != "" {
			re, err := regexp.Compile(c.Pattern)
			if err != nil {
				return nil, fmt.Errorf("carrier %s pattern: %w", c.Code, err)
			}
			c.re = re
		}
		out[c.Code] = c
	}
	return out, nil
}

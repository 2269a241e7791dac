// Package cfr implements the vectorised CFR engine: one betting-tree
// walk per half-iteration, producing per-hand counterfactual value
// vectors and updating regrets and sumprobs in place. The same walk,
// gated by mode flags, serves training, best response, CBR computation
// and the subgame resolver.
package cfr

import (
	"fmt"
	"math"
	"os"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// Config is the CFR configuration: algorithm knobs shared by training
// and resolving. Per-street vectors may be shorter than the street
// count; the last entry extends.
type Config struct {
	Name              string    `hcl:"name"`
	Algorithm         string    `hcl:"algorithm,optional"` // "cfrp" only
	NNRegrets         bool      `hcl:"nn_regrets,optional"`
	Uniform           bool      `hcl:"uniform,optional"`
	SoftWarmup        int       `hcl:"soft_warmup,optional"`
	HardWarmup        int       `hcl:"hard_warmup,optional"`
	Explore           float64   `hcl:"explore,optional"`
	DoubleRegrets     bool      `hcl:"double_regrets,optional"`
	DoubleSumprobs    bool      `hcl:"double_sumprobs,optional"`
	RegretFloors      []int     `hcl:"regret_floors,optional"`
	RegretCeilings    []int     `hcl:"regret_ceilings,optional"`
	RegretScaling     []float64 `hcl:"regret_scaling,optional"`
	SumprobScaling    []float64 `hcl:"sumprob_scaling,optional"`
	SumprobStreets    []int     `hcl:"sumprob_streets,optional"`
	CompressedStreets []int     `hcl:"compressed_streets,optional"`
	SubgameStreet     int       `hcl:"subgame_street,optional"` // 0 disables
	CFRDCap           float64   `hcl:"cfrd_cap,optional"`
	UniformAdd        float64   `hcl:"uniform_add,optional"`
}

// LoadConfig reads a CFR config from an HCL file.
func LoadConfig(path string) (*Config, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading cfr config: %w", err)
	}
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing cfr config: %s", diags.Error())
	}
	var c Config
	if diags := gohcl.DecodeBody(file.Body, nil, &c); diags.HasErrors() {
		return nil, fmt.Errorf("decoding cfr config: %s", diags.Error())
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the config for internal consistency.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("cfr config needs a name")
	}
	if c.Algorithm != "" && c.Algorithm != "cfrp" {
		return fmt.Errorf("cfr config %q: unknown algorithm %q", c.Name, c.Algorithm)
	}
	if c.Explore < 0 || c.Explore >= 1 {
		return fmt.Errorf("cfr config %q: explore must be in [0, 1)", c.Name)
	}
	return nil
}

// DefaultConfig returns a CFR+ configuration suitable for tests.
func DefaultConfig(name string) *Config {
	return &Config{Name: name, Algorithm: "cfrp", NNRegrets: true}
}

func perStreetInt(v []int, st int, def int32) int32 {
	if len(v) == 0 {
		return def
	}
	if st >= len(v) {
		st = len(v) - 1
	}
	return int32(v[st])
}

func perStreetFloat(v []float64, st int, def float64) float64 {
	if len(v) == 0 {
		return def
	}
	if st >= len(v) {
		st = len(v) - 1
	}
	return v[st]
}

// regretFloor resolves the per-street floor: a configured value of 1
// means unbounded (no floor), matching the sentinel used by the file
// format; unset means zero (CFR+).
func (c *Config) regretFloor(st int) int32 {
	f := perStreetInt(c.RegretFloors, st, 0)
	if f == 1 {
		return math.MinInt32
	}
	return f
}

func (c *Config) regretCeiling(st int) int32 {
	cl := perStreetInt(c.RegretCeilings, st, 0)
	if cl == 0 {
		return math.MaxInt32
	}
	return cl
}

// SumprobStreet reports whether sumprobs accumulate on street st. An
// empty list means every street.
func (c *Config) SumprobStreet(st int) bool {
	if len(c.SumprobStreets) == 0 {
		return true
	}
	for _, s := range c.SumprobStreets {
		if s == st {
			return true
		}
	}
	return false
}

// CompressedStreet reports whether street st's files are compressed.
func (c *Config) CompressedStreet(st int) bool {
	for _, s := range c.CompressedStreets {
		if s == st {
			return true
		}
	}
	return false
}

// CompressedMask expands the compressed street list to a per-street
// bool slice.
func (c *Config) CompressedMask(maxStreet int) []bool {
	mask := make([]bool, maxStreet+1)
	for st := 0; st <= maxStreet; st++ {
		mask[st] = c.CompressedStreet(st)
	}
	return mask
}

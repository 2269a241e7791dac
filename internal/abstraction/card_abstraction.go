// Package abstraction implements the card abstraction: per-street
// bucketings that map (board, hole-card-pair) holdings onto a smaller
// set of strategically similar classes.
package abstraction

import (
	"fmt"
	"math"
	"os"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// CardAbstraction names the bucketing used on each street. A bucketing
// of "none" keeps the street unabstracted. BucketThresholds bound the
// pot size (last bet-to) below which buckets apply; pots at or above
// the threshold fall back to card-level strategy.
type CardAbstraction struct {
	Name             string   `hcl:"name"`
	Bucketings       []string `hcl:"bucketings"`
	BucketThresholds []int    `hcl:"bucket_thresholds,optional"`
	BucketsDir       string   `hcl:"buckets_dir,optional"`
}

// LoadCardAbstraction reads a card abstraction from an HCL file.
func LoadCardAbstraction(path string) (*CardAbstraction, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading card abstraction: %w", err)
	}
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing card abstraction: %s", diags.Error())
	}
	var ca CardAbstraction
	if diags := gohcl.DecodeBody(file.Body, nil, &ca); diags.HasErrors() {
		return nil, fmt.Errorf("decoding card abstraction: %s", diags.Error())
	}
	return &ca, nil
}

// NewUnabstracted returns the identity abstraction over maxStreet+1
// streets.
func NewUnabstracted(name string, maxStreet int) *CardAbstraction {
	b := make([]string, maxStreet+1)
	for i := range b {
		b[i] = "none"
	}
	return &CardAbstraction{Name: name, Bucketings: b}
}

// Bucketing returns the bucketing name for street st.
func (ca *CardAbstraction) Bucketing(st int) string {
	if st >= len(ca.Bucketings) {
		return "none"
	}
	return ca.Bucketings[st]
}

// BucketThreshold returns the pot-size bound below which street st is
// bucketed. Unset thresholds never cut over to card-level play.
func (ca *CardAbstraction) BucketThreshold(st int) int {
	if st >= len(ca.BucketThresholds) {
		return math.MaxInt32
	}
	if ca.BucketThresholds[st] == 0 {
		return math.MaxInt32
	}
	return ca.BucketThresholds[st]
}

// Bucketed reports whether any street carries a bucketing.
func (ca *CardAbstraction) Bucketed() bool {
	for _, b := range ca.Bucketings {
		if b != "none" {
			return true
		}
	}
	return false
}

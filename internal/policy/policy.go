// Package policy loads the late-fee policy. The policy is written in CUE and
// checked against the #Policy schema before it is decoded, so the late-fee
// constants have exactly one source of truth.
package policy

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/shopspring/decimal"
)

//go:embed schema.cue
var schemaSource string

//go:embed default.cue
var defaultSource []byte

// Band names returned by Policy.Band.
const (
	BandNone     = ""
	BandModerate = "moderate"
	BandHigh     = "high"
	BandSevere   = "severe"
)

// Policy holds the late-fee parameters shared by every lease.
type Policy struct {
	GraceDays         int             `json:"grace_days"`
	WeeklyLateFee     decimal.Decimal `json:"weekly_late_fee"`
	BiweeklyLateFee   decimal.Decimal `json:"biweekly_late_fee"`
	MonthlyLateFee    decimal.Decimal `json:"monthly_late_fee"`
	MaxLateFeePercent decimal.Decimal `json:"max_late_fee_percent"`
	Bands             Bands           `json:"bands"`
}

// Bands are the total-due thresholds used for display only.
type Bands struct {
	Severe   decimal.Decimal `json:"severe"`
	High     decimal.Decimal `json:"high"`
	Moderate decimal.Decimal `json:"moderate"`
}

// Band classifies a total amount due. Thresholds are exclusive.
func (p Policy) Band(totalDue decimal.Decimal) string {
	switch {
	case totalDue.GreaterThan(p.Bands.Severe):
		return BandSevere
	case totalDue.GreaterThan(p.Bands.High):
		return BandHigh
	case totalDue.GreaterThan(p.Bands.Moderate):
		return BandModerate
	}
	return BandNone
}

// Default returns the shipped policy. It panics if the embedded files are
// invalid, which the package tests guard against.
func Default() Policy {
	p, err := Parse("default.cue", defaultSource)
	if err != nil {
		panic(fmt.Sprintf("policy: embedded default is invalid: %v", err))
	}
	return p
}

// Load reads a CUE policy file. An empty path yields the shipped default.
func Load(path string) (Policy, error) {
	if path == "" {
		return Default(), nil
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("reading policy file: %w", err)
	}
	return Parse(path, src)
}

// Parse validates src against #Policy and decodes it. Fields src leaves out
// take the schema defaults; fields the schema does not know are rejected.
func Parse(filename string, src []byte) (Policy, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Policy{}, fmt.Errorf("compiling policy schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Policy"))

	data := ctx.CompileBytes(src, cue.Filename(filename))
	if err := data.Err(); err != nil {
		return Policy{}, fmt.Errorf("compiling %s: %w", filename, err)
	}

	v := def.Unify(data)
	if err := v.Validate(); err != nil {
		return Policy{}, fmt.Errorf("validating %s: %w", filename, err)
	}

	raw, err := v.MarshalJSON()
	if err != nil {
		return Policy{}, fmt.Errorf("resolving %s: %w", filename, err)
	}
	var p Policy
	if err := json.Unmarshal(raw, &p); err != nil {
		return Policy{}, fmt.Errorf("decoding %s: %w", filename, err)
	}
	return p, nil
}

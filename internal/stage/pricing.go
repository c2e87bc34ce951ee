package stage

import (
	"context"
	"fmt"
	"math"
	"strings"

	"bidline/internal/domain"
)

// LaborRate is one labor category with its fully burdened build-up.
type LaborRate struct {
	Category      string  `json:"category"`
	SOCCode       string  `json:"soc_code"`
	BaseRate      float64 `json:"base_rate"`
	Fringe        float64 `json:"fringe"`
	Overhead      float64 `json:"overhead"`
	GA            float64 `json:"ga"`
	Fee           float64 `json:"fee"`
	FullyBurdened float64 `json:"fully_burdened_rate"`
	Hours         float64 `json:"hours"`
	ExtendedCost  float64 `json:"extended_cost"`
	DataSource    string  `json:"data_source"`
}

// Scenario is one sensitivity data point.
type Scenario struct {
	Label      string  `json:"label"`
	Adjustment float64 `json:"adjustment_pct"`
	TotalCost  float64 `json:"total_cost"`
}

// PricingArtifact is the pricing workbook handed to the second gate.
type PricingArtifact struct {
	LaborCategories []LaborRate `json:"labor_categories"`
	TotalLaborCost  float64     `json:"total_labor_cost"`
	TotalCost       float64     `json:"total_cost"`
	BOENarrative    string      `json:"boe_narrative"`
	Assumptions     []string    `json:"assumptions"`
	Sensitivity     []Scenario  `json:"sensitivity_analysis"`
}

// WrapRates are the standard indirect rate percentages applied in sequence:
// fringe on base, overhead on that subtotal, G&A next, fee last.
type WrapRates struct {
	Fringe   float64
	Overhead float64
	GA       float64
	Fee      float64
}

// DefaultWrapRates reflect a typical small-business services cost structure.
var DefaultWrapRates = WrapRates{Fringe: 30, Overhead: 15, GA: 10, Fee: 8}

// PricingExecutor builds the basis-of-estimate workbook from market labor
// rates. It is deliberately self-contained: rates come from embedded BLS and
// GSA CALC reference tables, so pricing never blocks on an external service.
type PricingExecutor struct {
	Wrap WrapRates
}

func (e *PricingExecutor) Stage() domain.Stage { return domain.StagePricing }
func (e *PricingExecutor) Idempotent() bool    { return true }

func (e *PricingExecutor) Execute(ctx context.Context, sc *Context) (Result, error) {
	wrap := e.Wrap
	if wrap == (WrapRates{}) {
		wrap = DefaultWrapRates
	}
	opp := sc.Opportunity
	categories := laborMix(opp)
	hours := hoursEstimate(opp.EstimatedValue, len(categories))

	art := PricingArtifact{
		Assumptions: []string{
			"Rates sourced from BLS OES national means and GSA CALC averages",
			fmt.Sprintf("Wrap sequence: fringe %.0f%%, overhead %.0f%%, G&A %.0f%%, fee %.0f%%",
				wrap.Fringe, wrap.Overhead, wrap.GA, wrap.Fee),
			"Hours split evenly across labor categories",
		},
	}
	for _, category := range categories {
		soc := MapLaborToSOC(category)
		base, source := marketRate(category, soc)
		rate := BurdenedRate(base, wrap)
		rate.Category = category
		rate.SOCCode = soc
		rate.Hours = hours
		rate.ExtendedCost = round2(rate.FullyBurdened * hours)
		rate.DataSource = source
		art.LaborCategories = append(art.LaborCategories, rate)
		art.TotalLaborCost += rate.ExtendedCost
	}
	art.TotalLaborCost = round2(art.TotalLaborCost)
	art.TotalCost = art.TotalLaborCost
	art.BOENarrative = boeNarrative(art, wrap)
	for _, adj := range []float64{-25, -10, 10, 25} {
		art.Sensitivity = append(art.Sensitivity, Scenario{
			Label:      fmt.Sprintf("%+.0f%%", adj),
			Adjustment: adj,
			TotalCost:  round2(art.TotalCost * (1 + adj/100)),
		})
	}
	return Result{Artifact: art}, nil
}

// laborMix picks labor categories from the opportunity's subject matter.
func laborMix(opp domain.Opportunity) []string {
	text := strings.ToLower(opp.Title + " " + opp.Description)
	var mix []string
	if strings.Contains(text, "security") || strings.Contains(text, "cyber") || strings.Contains(text, "zero trust") {
		mix = append(mix, "Cybersecurity Analyst")
	}
	if strings.Contains(text, "software") || strings.Contains(text, "develop") || strings.Contains(text, "application") {
		mix = append(mix, "Software Engineer")
	}
	if strings.Contains(text, "help desk") || strings.Contains(text, "support") {
		mix = append(mix, "Business Analyst")
	}
	if len(mix) == 0 {
		mix = append(mix, "Software Engineer")
	}
	mix = append(mix, "Project Manager")
	return mix
}

func hoursEstimate(value *float64, categories int) float64 {
	if value == nil || categories == 0 {
		return 1880
	}
	// Back out hours from value at a blended burdened rate.
	hours := *value / 120 / float64(categories)
	if hours < 100 {
		hours = 100
	}
	return math.Round(hours)
}

// socMappings route labor category keywords to SOC codes.
var socMappings = []struct{ keyword, soc string }{
	{"software", "15-1252"},
	{"developer", "15-1252"},
	{"programmer", "15-1252"},
	{"cybersecurity", "15-1212"},
	{"security analyst", "15-1212"},
	{"infosec", "15-1212"},
	{"project manager", "13-1081"},
	{"program manager", "13-1081"},
	{"translator", "27-3091"},
	{"interpreter", "27-3091"},
}

// MapLaborToSOC maps a labor category name to its Standard Occupational
// Classification code, defaulting to Computer Occupations, All Other.
func MapLaborToSOC(category string) string {
	lower := strings.ToLower(category)
	for _, m := range socMappings {
		if strings.Contains(lower, m.keyword) {
			return m.soc
		}
	}
	return "15-1299"
}

// blsRates are national mean hourly rates by SOC code.
var blsRates = map[string]float64{
	"15-1252": 55.23, // Software Developers
	"15-1299": 48.50, // Computer Occupations, All Other
	"15-1212": 58.77, // Information Security Analysts
	"13-1081": 42.15, // Logisticians
	"27-3091": 28.63, // Interpreters and Translators
}

// calcRates are GSA CALC average awarded rates by category keyword.
var calcRates = map[string]float64{
	"senior software engineer": 95,
	"software engineer":        75,
	"cybersecurity analyst":    85,
	"project manager":          90,
	"business analyst":         70,
}

// marketRate reconciles BLS and CALC data, preferring the higher observed
// market rate with its source.
func marketRate(category, soc string) (rate float64, source string) {
	rate, source = 50.0, "default"
	if bls, ok := blsRates[soc]; ok {
		rate, source = bls, "BLS OES"
	}
	lower := strings.ToLower(category)
	for key, calc := range calcRates {
		if strings.Contains(lower, key) && calc > rate {
			rate, source = calc, "GSA CALC"
		}
	}
	return rate, source
}

// BurdenedRate applies the wrap sequence to a base hourly rate.
func BurdenedRate(base float64, wrap WrapRates) LaborRate {
	fringe := base * wrap.Fringe / 100
	sub1 := base + fringe
	overhead := sub1 * wrap.Overhead / 100
	sub2 := sub1 + overhead
	ga := sub2 * wrap.GA / 100
	sub3 := sub2 + ga
	fee := sub3 * wrap.Fee / 100
	return LaborRate{
		BaseRate:      round2(base),
		Fringe:        round2(fringe),
		Overhead:      round2(overhead),
		GA:            round2(ga),
		Fee:           round2(fee),
		FullyBurdened: round2(sub3 + fee),
	}
}

func boeNarrative(art PricingArtifact, wrap WrapRates) string {
	var b strings.Builder
	b.WriteString("BASIS OF ESTIMATE\n\nPricing is built from authoritative market labor rates with our standard wrap sequence applied.\n")
	fmt.Fprintf(&b, "\nLabor categories analyzed: %d\n", len(art.LaborCategories))
	for _, lc := range art.LaborCategories {
		fmt.Fprintf(&b, "- %s (SOC %s): base $%.2f/hr, burdened $%.2f/hr via %s\n",
			lc.Category, lc.SOCCode, lc.BaseRate, lc.FullyBurdened, lc.DataSource)
	}
	fmt.Fprintf(&b, "\nWrap rates: fringe %.0f%%, overhead %.0f%%, G&A %.0f%%, fee %.0f%%.\n",
		wrap.Fringe, wrap.Overhead, wrap.GA, wrap.Fee)
	fmt.Fprintf(&b, "Total estimated labor cost: $%.2f.\n", art.TotalLaborCost)
	return b.String()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Package classify maps raw exposure attributes onto reporting dimensions:
// counterparty country code → geographic region, and free-text product
// type → economic sector.
//
// Both functions are pure and total: any non-empty input resolves to a
// bucket, unknown values fall through to the catch-all. Sector rules are an
// explicit ordered list so rule precedence stays auditable — a product text
// matching two rules resolves to the first.
package classify

import (
	"strings"

	"github.com/petitpapa86/be-tech-reg-sub016/internal/model"
)

// euCountries is the fixed set of EU member states other than Italy.
// Codes are ISO 3166-1 alpha-2.
var euCountries = map[string]struct{}{
	"AT": {}, "BE": {}, "BG": {}, "HR": {}, "CY": {}, "CZ": {},
	"DK": {}, "EE": {}, "FI": {}, "FR": {}, "DE": {}, "GR": {},
	"HU": {}, "IE": {}, "LV": {}, "LT": {}, "LU": {}, "MT": {},
	"NL": {}, "PL": {}, "PT": {}, "RO": {}, "SK": {}, "SI": {},
	"ES": {}, "SE": {},
}

// Region classifies a country code into a geographic region.
// "IT" → ITALY, any other EU member → EU_OTHER, everything else →
// NON_EUROPEAN. Matching is case-insensitive.
func Region(countryCode string) model.GeographicRegion {
	code := strings.ToUpper(strings.TrimSpace(countryCode))
	if code == "IT" {
		return model.RegionItaly
	}
	if _, ok := euCountries[code]; ok {
		return model.RegionEUOther
	}
	return model.RegionNonEuropean
}

// SectorRule maps any of its substrings to a sector. Rules are evaluated
// in slice order; the first matching rule wins.
type SectorRule struct {
	Substrings []string
	Sector     model.EconomicSector
}

// SectorRules is the ordered sector rule chain. Order matters:
// "MORTGAGE GOVERNMENT BOND" is RETAIL_MORTGAGE, not SOVEREIGN.
var SectorRules = []SectorRule{
	{Substrings: []string{"MORTGAGE"}, Sector: model.SectorRetailMortgage},
	{Substrings: []string{"GOVERNMENT", "TREASURY"}, Sector: model.SectorSovereign},
	{Substrings: []string{"INTERBANK"}, Sector: model.SectorBanking},
	{Substrings: []string{"BUSINESS", "EQUIPMENT", "CREDIT LINE"}, Sector: model.SectorCorporate},
}

// Sector classifies free-text product type into an economic sector using
// case-insensitive substring matching over SectorRules.
func Sector(productType string) model.EconomicSector {
	text := strings.ToUpper(productType)
	for _, rule := range SectorRules {
		for _, sub := range rule.Substrings {
			if strings.Contains(text, sub) {
				return rule.Sector
			}
		}
	}
	return model.SectorOther
}

package camera

import "strings"

// BrandTableVersion identifies the keyword table below. Bump it whenever
// the list changes so stored events can be traced to the table that
// produced them.
const BrandTableVersion = "2026-01"

// brandKeywords is the static lookup table for brand extraction. Keywords
// use underscores; labels are normalized the same way before matching.
var brandKeywords = []string{
	"coca_cola", "coke", "pepsi", "sprite", "fanta", "mountain_dew",
	"redbull", "monster", "gatorade", "powerade", "aquafina", "dasani",
	"nestle", "lipton", "snapple", "arizona", "vitamin_water",
	"perrier", "evian", "fiji", "smartwater", "propel",
	"mister_potato", "maggi", "indomie", "mamee", "twisties", "pringles",
	"lays", "doritos", "cheetos", "kitkat", "snickers",
}

// ExtractBrand returns the brand keyword contained in a detector label, or
// "" when none matches. Matching is case-insensitive substring lookup with
// spaces normalized to underscores, so "Coca Cola Can" and "coca_cola_can"
// both resolve to "coca cola".
func ExtractBrand(label string) string {
	normalized := strings.ReplaceAll(strings.ToLower(label), " ", "_")
	for _, keyword := range brandKeywords {
		if strings.Contains(normalized, keyword) {
			return strings.ReplaceAll(keyword, "_", " ")
		}
	}
	return ""
}

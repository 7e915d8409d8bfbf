// Package enrich reconciles sector, industry, and capitalization-tier
// attributes for symbol batches under a strict source-precedence order.
package enrich

import "strings"

// industrySectors maps a provider's raw industry string (normalized) to the
// coarse sector taxonomy used across the app. The table is consulted before
// the provider's own sector field because the industry string is far more
// specific and the provider's sector mapping is inconsistent across markets.
var industrySectors = map[string]string{
	"semiconductors":                   "Technology",
	"semiconductor equipment":          "Technology",
	"consumer electronics":             "Technology",
	"software - application":           "Technology",
	"software - infrastructure":        "Technology",
	"information technology services":  "Technology",
	"communication equipment":          "Technology",
	"electronic components":            "Technology",
	"computer hardware":                "Technology",
	"internet content & information":   "Communication Services",
	"telecom services":                 "Communication Services",
	"entertainment":                    "Communication Services",
	"advertising agencies":             "Communication Services",
	"banks - regional":                 "Financials",
	"banks - diversified":              "Financials",
	"capital markets":                  "Financials",
	"insurance - life":                 "Financials",
	"insurance - property & casualty":  "Financials",
	"asset management":                 "Financials",
	"credit services":                  "Financials",
	"drug manufacturers - general":     "Healthcare",
	"drug manufacturers - specialty":   "Healthcare",
	"biotechnology":                    "Healthcare",
	"medical devices":                  "Healthcare",
	"medical instruments & supplies":   "Healthcare",
	"healthcare plans":                 "Healthcare",
	"auto manufacturers":               "Consumer Cyclical",
	"auto parts":                       "Consumer Cyclical",
	"apparel retail":                   "Consumer Cyclical",
	"internet retail":                  "Consumer Cyclical",
	"restaurants":                      "Consumer Cyclical",
	"travel services":                  "Consumer Cyclical",
	"residential construction":         "Consumer Cyclical",
	"grocery stores":                   "Consumer Defensive",
	"packaged foods":                   "Consumer Defensive",
	"beverages - non-alcoholic":        "Consumer Defensive",
	"beverages - brewers":              "Consumer Defensive",
	"tobacco":                          "Consumer Defensive",
	"household & personal products":    "Consumer Defensive",
	"discount stores":                  "Consumer Defensive",
	"oil & gas integrated":             "Energy",
	"oil & gas e&p":                    "Energy",
	"oil & gas refining & marketing":   "Energy",
	"uranium":                          "Energy",
	"utilities - regulated electric":   "Utilities",
	"utilities - regulated gas":        "Utilities",
	"utilities - renewable":            "Utilities",
	"steel":                            "Materials",
	"chemicals":                        "Materials",
	"specialty chemicals":              "Materials",
	"gold":                             "Materials",
	"copper":                           "Materials",
	"building materials":               "Materials",
	"paper & paper products":           "Materials",
	"aerospace & defense":              "Industrials",
	"airlines":                         "Industrials",
	"railroads":                        "Industrials",
	"marine shipping":                  "Industrials",
	"engineering & construction":       "Industrials",
	"farm & heavy construction machinery": "Industrials",
	"electrical equipment & parts":     "Industrials",
	"specialty industrial machinery":   "Industrials",
	"conglomerates":                    "Industrials",
	"real estate services":             "Real Estate",
	"reit - diversified":               "Real Estate",
	"reit - retail":                    "Real Estate",
	"reit - office":                    "Real Estate",
}

// SectorForIndustry resolves a provider industry string to a sector via the
// structured lookup table. Returns "" when the industry is unknown.
func SectorForIndustry(industry string) string {
	norm := strings.ToLower(strings.TrimSpace(industry))
	if norm == "" {
		return ""
	}
	if sector, ok := industrySectors[norm]; ok {
		return sector
	}
	// Tolerate minor provider variations ("REIT - Retail Shopping Centers").
	for key, sector := range industrySectors {
		if strings.HasPrefix(norm, key) {
			return sector
		}
	}
	return ""
}

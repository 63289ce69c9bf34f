package transform

import (
	"strings"

	"github.com/yungbote/learnergraph-backend/internal/normalization"
)

// countryAliases maps the country spellings seen in source exports to a
// two-letter code. Unknown spellings leave the learner without a country
// rather than failing the row.
var countryAliases = map[string]string{
	"egypt":                "EG",
	"saudi arabia":         "SA",
	"ksa":                  "SA",
	"kingdom of saudi arabia": "SA",
	"united arab emirates": "AE",
	"uae":                  "AE",
	"jordan":               "JO",
	"morocco":              "MA",
	"tunisia":              "TN",
	"algeria":              "DZ",
	"lebanon":              "LB",
	"palestine":            "PS",
	"iraq":                 "IQ",
	"yemen":                "YE",
	"libya":                "LY",
	"sudan":                "SD",
	"qatar":                "QA",
	"kuwait":               "KW",
	"bahrain":              "BH",
	"oman":                 "OM",
	"turkey":               "TR",
	"turkiye":              "TR",
	"united states":        "US",
	"united states of america": "US",
	"usa":            "US",
	"united kingdom": "GB",
	"uk":             "GB",
	"germany":        "DE",
	"france":         "FR",
	"spain":          "ES",
	"italy":          "IT",
	"netherlands":    "NL",
	"canada":         "CA",
	"india":          "IN",
	"pakistan":       "PK",
	"nigeria":        "NG",
	"kenya":          "KE",
}

// NormalizeCountry resolves a raw country value to a two-letter code.
// Two-letter inputs pass through uppercased.
func NormalizeCountry(raw string) (string, bool) {
	v := normalization.ParseInputString(raw)
	if v == "" || normalization.IsBlank(v) {
		return "", false
	}
	if code, ok := countryAliases[v]; ok {
		return code, true
	}
	if len(v) == 2 && isAlpha(v) {
		return strings.ToUpper(v), true
	}
	return "", false
}

// CityID derives the natural key for a city, scoped by country so that
// same-named cities in different countries stay distinct nodes.
func CityID(city, countryCode string) string {
	slug := normalization.Slug(city)
	if slug == "" {
		return ""
	}
	if countryCode == "" {
		return slug
	}
	return slug + "-" + strings.ToLower(countryCode)
}

func isAlpha(s string) bool {
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

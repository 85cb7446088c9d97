// Package htmlreport renders the human-readable artifacts of an export: one
// page per test case patient and a summary page per batch.
package htmlreport

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"math"
	"strings"

	"github.com/Masterminds/sprig/v3"
)

//go:embed templates/*.html
var templateFS embed.FS

// PopulationAbbr maps population names to the column headers of the summary
// report. Unknown names are shown upper-cased.
var PopulationAbbr = map[string]string{
	"initialPopulation":            "IPP",
	"measurePopulation":            "MSRPOPL",
	"measurePopulationExclusion":   "MSRPOPLEX",
	"denominator":                  "DENOM",
	"numerator":                    "NUMER",
	"numeratorExclusion":           "NUMEX",
	"denominatorException":         "DENEXCEP",
	"denominatorExclusion":         "DENEX",
	"stratification":               "STRAT",
	"measureObservation":           "OBSERV",
	"measurePopulationObservation": "OBSERV",
}

// Abbreviate returns the summary column header for a population name.
func Abbreviate(name string) string {
	if abbr, ok := PopulationAbbr[name]; ok {
		return abbr
	}
	return strings.ToUpper(name)
}

// parse loads the named page together with the shared partials.
func parse(page string) (*template.Template, error) {
	tmpl, err := template.New(page).
		Funcs(sprig.HtmlFuncMap()).
		ParseFS(templateFS, "templates/style.html", "templates/"+page)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", page, err)
	}
	return tmpl, nil
}

func execute(tmpl *template.Template, view interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, view); err != nil {
		return nil, fmt.Errorf("execute %s: %w", tmpl.Name(), err)
	}
	return buf.Bytes(), nil
}

// display formats a decoded JSON value for a table cell.
func display(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1e15 {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case map[string]interface{}:
		if code, ok := val["code"].(string); ok {
			if d, ok := val["display"].(string); ok && d != "" {
				return fmt.Sprintf("%s (%s)", d, code)
			}
			return code
		}
		if value, ok := val["value"]; ok {
			unit, _ := val["unit"].(string)
			return strings.TrimSpace(display(value) + " " + unit)
		}
	}
	return fmt.Sprint(v)
}

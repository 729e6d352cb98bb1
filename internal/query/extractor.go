package query

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	// DefaultDays is used when the query names no duration.
	DefaultDays = 7
	// MaxDays is the longest plan the service generates.
	MaxDays = 7
)

// Warning categories.
const (
	WarnDaysUnspecified                = "days_unspecified"
	WarnDaysCapped                     = "days_capped_at_7"
	WarnDaysRaised                     = "days_raised_to_1"
	WarnDietaryRestrictionsUnspecified = "dietary_restrictions_unspecified"
	WarnPreferencesUnspecified         = "preferences_unspecified"
	WarnSpecialRequirementsUnspecified = "special_requirements_unspecified"
	WarnConflictingRestrictions        = "conflicting_restrictions"
	WarnSynonymInference               = "synonym_inference"
)

// BudgetFriendly is the special requirement that lowers the cost estimate.
const BudgetFriendly = "budget-friendly"

// Warning is a non-fatal note about how the query was interpreted.
type Warning struct {
	Category string `json:"category"`
	Value    string `json:"value"`
}

// Known vocabularies, in the order matches are reported.
var (
	DietaryRestrictions = []string{
		"vegan", "vegetarian", "pescatarian", "paleo", "keto",
		"gluten-free", "dairy-free", "nut-free", "soy-free",
		"halal", "kosher", "mediterranean", "dash",
	}
	Preferences         = []string{"low-carb", "high-protein", "low-fat", "low-sodium"}
	SpecialRequirements = []string{BudgetFriendly, "quick", "easy", "healthy"}
)

type durationPattern struct {
	re         *regexp.Regexp
	multiplier int
	fixed      int
}

// First match wins.
var durationPatterns = []durationPattern{
	{re: regexp.MustCompile(`(\d+)[\s-]*day`), multiplier: 1},
	{re: regexp.MustCompile(`(\d+)\s*week`), multiplier: 7},
	{re: regexp.MustCompile(`week`), fixed: 7},
	{re: regexp.MustCompile(`\b(?:next|this|for the|for a)\s+week\b`), fixed: 7},
	{re: regexp.MustCompile(`\b(?:for|over)\s+(\d+)\s+days?\b`), multiplier: 1},
}

var specialPatterns = []struct {
	tag string
	re  *regexp.Regexp
}{
	{BudgetFriendly, regexp.MustCompile(`\b(budget|cheap|affordable|inexpensive|low.?cost)\b`)},
	{"quick", regexp.MustCompile(`\b(quick|fast|15\s*min|under\s*\d+\s*min|quickly|rapid)\b`)},
	{"easy", regexp.MustCompile(`\b(easy|simple|straightforward)\b`)},
	{"healthy", regexp.MustCompile(`\b(healthy|nutritious|wholesome)\b`)},
}

type conflictPair struct {
	a, b    string
	message string
}

var conflictPairs = []conflictPair{
	{"vegan", "pescatarian", "Vegan and pescatarian are conflicting - vegan excludes all animal products including fish"},
	{"vegan", "vegetarian", "Vegan and vegetarian are conflicting - please choose one. Vegan excludes all animal products, vegetarian excludes meat but allows dairy/eggs"},
	{"pescatarian", "vegetarian", "Pescatarian and vegetarian are conflicting - pescatarian includes fish, vegetarian does not. Please choose one"},
}

// Extraction is the result of scanning a query.
type Extraction struct {
	DurationDays        int       `json:"duration_days"`
	DurationExplicit    bool      `json:"duration_explicit"`
	DietaryRestrictions []string  `json:"dietary_restrictions"`
	Preferences         []string  `json:"preferences"`
	SpecialRequirements []string  `json:"special_requirements"`
	Warnings            []Warning `json:"warnings"`
}

// ExtractionError is a caller-fixable problem with the query itself.
type ExtractionError struct {
	Message  string
	Warnings []Warning
}

func (e *ExtractionError) Error() string {
	return e.Message
}

// Extractor pulls plan constraints out of free text with fixed patterns.
type Extractor struct {
	restrictionPatterns map[string]*regexp.Regexp
	preferencePatterns  map[string]*regexp.Regexp
}

// NewExtractor compiles the vocabulary patterns.
func NewExtractor() *Extractor {
	return &Extractor{
		restrictionPatterns: compileVocabulary(DietaryRestrictions),
		preferencePatterns:  compileVocabulary(Preferences),
	}
}

// compileVocabulary matches each term on word boundaries, treating a hyphen
// and a space as interchangeable.
func compileVocabulary(terms []string) map[string]*regexp.Regexp {
	out := make(map[string]*regexp.Regexp, len(terms))
	for _, term := range terms {
		pattern := strings.ReplaceAll(regexp.QuoteMeta(term), "-", "[- ]")
		out[term] = regexp.MustCompile(`\b` + pattern + `\b`)
	}
	return out
}

// Extract scans query and returns the constraints found. Conflicting
// dietary restrictions fail the extraction with an *ExtractionError.
func (e *Extractor) Extract(query string) (Extraction, error) {
	lower := strings.ToLower(query)
	ex := Extraction{
		DietaryRestrictions: []string{},
		Preferences:         []string{},
		SpecialRequirements: []string{},
		Warnings:            []Warning{},
	}

	days, explicit := extractDuration(lower)
	ex.DurationExplicit = explicit
	if !explicit {
		ex.Warnings = append(ex.Warnings, Warning{
			Category: WarnDaysUnspecified,
			Value:    fmt.Sprintf("Duration not specified. Defaulting to %d days.", DefaultDays),
		})
	}
	if days > MaxDays {
		ex.Warnings = append(ex.Warnings, Warning{
			Category: WarnDaysCapped,
			Value:    fmt.Sprintf("Requested %d days. Limited to %d days maximum.", days, MaxDays),
		})
		days = MaxDays
	}
	ex.DurationDays = days

	ex.DietaryRestrictions = matchVocabulary(lower, DietaryRestrictions, e.restrictionPatterns)
	if len(ex.DietaryRestrictions) == 0 {
		ex.Warnings = append(ex.Warnings, Warning{
			Category: WarnDietaryRestrictionsUnspecified,
			Value:    "No dietary restrictions specified. Generating general meal plan.",
		})
	}

	ex.Preferences = matchVocabulary(lower, Preferences, e.preferencePatterns)
	if len(ex.Preferences) == 0 {
		ex.Warnings = append(ex.Warnings, Warning{
			Category: WarnPreferencesUnspecified,
			Value:    "No nutritional preferences specified. Generating balanced meal plan.",
		})
	}

	for _, sp := range specialPatterns {
		if sp.re.MatchString(lower) {
			ex.SpecialRequirements = append(ex.SpecialRequirements, sp.tag)
		}
	}
	if len(ex.SpecialRequirements) == 0 {
		ex.Warnings = append(ex.Warnings, Warning{
			Category: WarnSpecialRequirementsUnspecified,
			Value:    "No special requirements specified. Generating standard meal plan.",
		})
	}

	if conflict := findConflict(ex.DietaryRestrictions); conflict != nil {
		ex.Warnings = append(ex.Warnings, Warning{
			Category: WarnConflictingRestrictions,
			Value:    fmt.Sprintf("Conflicting dietary restrictions detected: %s, %s. %s", conflict.a, conflict.b, conflict.message),
		})
		return ex, &ExtractionError{Message: conflict.message, Warnings: ex.Warnings}
	}

	return ex, nil
}

func extractDuration(lower string) (int, bool) {
	for _, p := range durationPatterns {
		m := p.re.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		if p.fixed > 0 {
			return p.fixed, true
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			// Only overflow gets here; anything that large is capped anyway.
			return MaxDays + 1, true
		}
		if n > 10000 {
			n = 10000
		}
		return n * p.multiplier, true
	}
	return DefaultDays, false
}

func matchVocabulary(lower string, terms []string, patterns map[string]*regexp.Regexp) []string {
	found := []string{}
	for _, term := range terms {
		if patterns[term].MatchString(lower) {
			found = append(found, term)
		}
	}
	return found
}

func findConflict(restrictions []string) *conflictPair {
	present := make(map[string]bool, len(restrictions))
	for _, r := range restrictions {
		present[r] = true
	}
	for i := range conflictPairs {
		if present[conflictPairs[i].a] && present[conflictPairs[i].b] {
			return &conflictPairs[i]
		}
	}
	return nil
}

package filter

import "strings"

// Canonical condition values.
const (
	ConditionNewWithTags    = "new_with_tags"
	ConditionNewWithoutTags = "new_without_tags"
	ConditionVeryGood       = "very_good"
	ConditionGood           = "good"
	ConditionSatisfactory   = "satisfactory"
)

var conditionSynonyms = map[string]string{
	"new with tags":    ConditionNewWithTags,
	"new without tags": ConditionNewWithoutTags,
	"very good":        ConditionVeryGood,
	"good":             ConditionGood,
	"satisfactory":     ConditionSatisfactory,

	"nuovo con cartellino":   ConditionNewWithTags,
	"nuovo senza cartellino": ConditionNewWithoutTags,
	"ottime":                 ConditionVeryGood,
	"ottime condizioni":      ConditionVeryGood,
	"buone":                  ConditionGood,
	"buone condizioni":       ConditionGood,
	"soddisfacenti":          ConditionSatisfactory,

	"nuevo con etiquetas": ConditionNewWithTags,
	"nuevo sin etiquetas": ConditionNewWithoutTags,
	"muy bueno":           ConditionVeryGood,
	"bueno":               ConditionGood,
	"satisfactorio":       ConditionSatisfactory,

	"neuf avec étiquette": ConditionNewWithTags,
	"neuf sans étiquette": ConditionNewWithoutTags,
	"très bon état":       ConditionVeryGood,
	"bon état":            ConditionGood,
	"satisfaisant":        ConditionSatisfactory,
}

// NormalizeCondition maps a localized condition label to its canonical value.
// Unknown labels are returned lower-cased and trimmed.
func NormalizeCondition(s string) string {
	key := strings.ToLower(strings.TrimSpace(s))
	if v, ok := conditionSynonyms[key]; ok {
		return v
	}
	return key
}

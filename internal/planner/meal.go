package planner

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"ai-meal-plan-api/internal/llm"
)

const (
	SourceAIGenerated = "AI Generated"
	SourcePlaceholder = "Placeholder"
)

// Defaults for nutrition fields the model left out.
const (
	defaultCalories = 350
	defaultProtein  = 20.0
	defaultCarbs    = 40.0
	defaultFat      = 10.0
)

// maxMealCalories bounds a single meal so the integer conversion stays safe.
const maxMealCalories = 5000

var nonNegativeNumber = map[string]any{"type": "number", "minimum": 0}

// mealSchema describes one meal object. It is loose where the model is known
// to vary (instructions as a list, prep time as a bare number) and strict
// everywhere else.
var mealSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"meal_type":   map[string]any{"type": "string", "enum": []string{"breakfast", "lunch", "dinner", "snack"}},
		"recipe_name": map[string]any{"type": "string", "minLength": 1},
		"description": map[string]any{"type": "string"},
		"ingredients": map[string]any{
			"type":     "array",
			"items":    map[string]any{"type": "string"},
			"minItems": 1,
		},
		"nutritional_info": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"calories": map[string]any{"type": "number", "minimum": 0, "maximum": maxMealCalories},
				"protein":  nonNegativeNumber,
				"carbs":    nonNegativeNumber,
				"fat":      nonNegativeNumber,
			},
		},
		"preparation_time": map[string]any{"type": []string{"string", "number"}},
		"instructions": map[string]any{
			"type":  []string{"string", "array"},
			"items": map[string]any{"type": "string"},
		},
		"source": map[string]any{"type": "string"},
	},
	"required": []string{"meal_type", "recipe_name", "description", "ingredients", "nutritional_info", "preparation_time", "instructions"},
}

// dayEnvelopeSchema only checks the outer shape of a day response; each meal
// is checked on its own so one bad meal does not cost the whole day.
var dayEnvelopeSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"meals": map[string]any{"type": "array", "items": map[string]any{"type": "object"}},
	},
	"required": []string{"meals"},
}

// dayRequestSchema is what the provider is asked to produce.
var dayRequestSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"meals": map[string]any{"type": "array", "items": mealSchema},
	},
	"required": []string{"meals"},
}

// rawMeal is a meal as the model sent it, before normalization.
type rawMeal struct {
	MealType        string          `json:"meal_type"`
	RecipeName      string          `json:"recipe_name"`
	Description     string          `json:"description"`
	Ingredients     []string        `json:"ingredients"`
	NutritionalInfo *rawNutrition   `json:"nutritional_info"`
	PreparationTime json.RawMessage `json:"preparation_time"`
	Instructions    json.RawMessage `json:"instructions"`
	Source          string          `json:"source"`
}

type rawNutrition struct {
	Calories *float64 `json:"calories"`
	Protein  *float64 `json:"protein"`
	Carbs    *float64 `json:"carbs"`
	Fat      *float64 `json:"fat"`
}

type dayEnvelope struct {
	Meals []json.RawMessage `json:"meals"`
}

// parseMeal validates one untrusted meal object and normalizes it: calories
// become an integer, macros floats, an instruction list one string.
func parseMeal(data []byte) (Meal, error) {
	data = canonicalMealType(data)
	if err := llm.ValidateJSON(mealSchema, data); err != nil {
		return Meal{}, err
	}
	var raw rawMeal
	if err := json.Unmarshal(data, &raw); err != nil {
		return Meal{}, fmt.Errorf("failed to decode meal: %w", err)
	}
	return normalizeMeal(raw)
}

// canonicalMealType lowercases meal_type so "Breakfast" passes the enum.
// Anything that is not an object with a string meal_type is returned as is
// and left to the validator.
func canonicalMealType(data []byte) []byte {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return data
	}
	var t string
	if err := json.Unmarshal(fields["meal_type"], &t); err != nil {
		return data
	}
	canonical := strings.ToLower(strings.TrimSpace(t))
	if canonical == t {
		return data
	}
	encoded, err := json.Marshal(canonical)
	if err != nil {
		return data
	}
	fields["meal_type"] = encoded
	out, err := json.Marshal(fields)
	if err != nil {
		return data
	}
	return out
}

func normalizeMeal(raw rawMeal) (Meal, error) {
	instructions, err := joinInstructions(raw.Instructions)
	if err != nil {
		return Meal{}, err
	}

	nutrition := NutritionalInfo{
		Calories: defaultCalories,
		Protein:  defaultProtein,
		Carbs:    defaultCarbs,
		Fat:      defaultFat,
	}
	if n := raw.NutritionalInfo; n != nil {
		if n.Calories != nil {
			nutrition.Calories = int(*n.Calories)
		}
		if n.Protein != nil {
			nutrition.Protein = *n.Protein
		}
		if n.Carbs != nil {
			nutrition.Carbs = *n.Carbs
		}
		if n.Fat != nil {
			nutrition.Fat = *n.Fat
		}
	}

	source := strings.TrimSpace(raw.Source)
	if source == "" {
		source = SourceAIGenerated
	}

	ingredients := make([]string, 0, len(raw.Ingredients))
	for _, ing := range raw.Ingredients {
		if ing = strings.TrimSpace(ing); ing != "" {
			ingredients = append(ingredients, ing)
		}
	}
	if len(ingredients) == 0 {
		return Meal{}, fmt.Errorf("meal %q has no ingredients", raw.RecipeName)
	}

	name := strings.TrimSpace(raw.RecipeName)
	if name == "" {
		return Meal{}, fmt.Errorf("meal has an empty recipe name")
	}

	return Meal{
		MealType:        MealType(strings.ToLower(strings.TrimSpace(raw.MealType))),
		RecipeName:      name,
		Description:     strings.TrimSpace(raw.Description),
		Ingredients:     ingredients,
		NutritionalInfo: nutrition,
		PreparationTime: prepTime(raw.PreparationTime),
		Instructions:    instructions,
		Source:          source,
	}, nil
}

func joinInstructions(data json.RawMessage) (string, error) {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		return strings.TrimSpace(single), nil
	}
	var steps []string
	if err := json.Unmarshal(data, &steps); err != nil {
		return "", fmt.Errorf("instructions must be a string or a list of strings: %w", err)
	}
	return strings.Join(steps, " "), nil
}

func prepTime(data json.RawMessage) string {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		return strconv.Itoa(int(n)) + " mins"
	}
	return ""
}

// placeholderMeal is the last resort for a slot the model could not fill.
func placeholderMeal(t MealType) Meal {
	return Meal{
		MealType:    t,
		RecipeName:  fmt.Sprintf("Simple %s Bowl", t.Title()),
		Description: "A simple placeholder recipe.",
		Ingredients: []string{"ingredient 1", "ingredient 2"},
		NutritionalInfo: NutritionalInfo{
			Calories: 300,
			Protein:  12,
			Carbs:    40,
			Fat:      8,
		},
		PreparationTime: "15 mins",
		Instructions:    "Mix ingredients and serve.",
		Source:          SourcePlaceholder,
	}
}

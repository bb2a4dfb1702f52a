package prompt

import (
	"fmt"
	"slices"
	"strings"
)

// Option lists the values offered for one field of the builder.
type Option struct {
	Group  string   `json:"group"`
	Field  string   `json:"field"`
	Multi  bool     `json:"multi"`
	Values []string `json:"values"`
}

var catalog = []Option{
	{"appearance", "skin_color", true, []string{"Fair", "Light", "Medium", "Dark", "Very Dark"}},
	{"appearance", "height", false, []string{"Very Short", "Short", "Average", "Tall", "Very Tall"}},
	{"appearance", "build", false, []string{"Slim", "Athletic", "Average", "Stocky", "Large"}},
	{"clothing", "top", true, []string{"T-shirt", "Shirt", "Sweater", "Jacket", "Coat", "Dress"}},
	{"clothing", "bottom", true, []string{"Jeans", "Pants", "Shorts", "Skirt", "Dress"}},
	{"clothing", "footwear", true, []string{"Sneakers", "Boots", "Shoes", "Sandals", "High Heels"}},
	{"clothing", "accessories", true, []string{"Bag", "Backpack", "Hat", "Glasses", "Watch", "Jewelry"}},
	{"physical_features", "hair_style", true, []string{"Short", "Medium", "Long", "Curly", "Straight", "Wavy"}},
	{"physical_features", "hair_color", true, []string{"Black", "Brown", "Blonde", "Red", "Gray", "White"}},
	{"physical_features", "facial_features", true, []string{"Beard", "Mustache", "Glasses", "Facial Hair", "Clean Shaven"}},
	{"behavior", "posture", true, []string{"Standing", "Sitting", "Walking", "Running", "Bending"}},
	{"behavior", "action", true, []string{"Talking", "Using Phone", "Carrying Items", "Looking Around", "Interacting"}},
	{"behavior", "movement", true, []string{"Walking Fast", "Walking Slow", "Running", "Stopping", "Changing Direction"}},
	{"additional_details", "carrying", true, []string{"Bag", "Backpack", "Shopping Bag", "Laptop", "Phone", "Umbrella"}},
	{"additional_details", "location", true, []string{"Indoor", "Outdoor", "Street", "Store", "Office", "Public Space"}},
}

// Catalog returns a copy of the builder options in display order.
func Catalog() []Option {
	out := make([]Option, len(catalog))
	for i, o := range catalog {
		o.Values = slices.Clone(o.Values)
		out[i] = o
	}
	return out
}

func (s Selection) values() map[string][]string {
	return map[string][]string{
		"appearance.skin_color":             s.Appearance.SkinColor,
		"appearance.height":                 one(s.Appearance.Height),
		"appearance.build":                  one(s.Appearance.Build),
		"clothing.top":                      s.Clothing.Top,
		"clothing.bottom":                   s.Clothing.Bottom,
		"clothing.footwear":                 s.Clothing.Footwear,
		"clothing.accessories":              s.Clothing.Accessories,
		"physical_features.hair_style":      s.PhysicalFeatures.HairStyle,
		"physical_features.hair_color":      s.PhysicalFeatures.HairColor,
		"physical_features.facial_features": s.PhysicalFeatures.FacialFeatures,
		"behavior.posture":                  s.Behavior.Posture,
		"behavior.action":                   s.Behavior.Action,
		"behavior.movement":                 s.Behavior.Movement,
		"additional_details.carrying":       s.AdditionalDetails.Carrying,
		"additional_details.location":       s.AdditionalDetails.Location,
	}
}

// Validate checks every selected value against the catalog and rejects
// repeated values. Custom text is not checked.
func (s Selection) Validate() error {
	selected := s.values()
	var problems []string
	for _, o := range catalog {
		key := o.Group + "." + o.Field
		seen := make(map[string]bool)
		for _, v := range selected[key] {
			if !slices.Contains(o.Values, v) {
				problems = append(problems, fmt.Sprintf("%s: unknown value %q", key, v))
			} else if seen[v] {
				problems = append(problems, fmt.Sprintf("%s: %q selected twice", key, v))
			}
			seen[v] = true
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid selection: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Package prompt compiles a structured selection of person attributes into
// the sentence used as the description of a text target.
package prompt

import "strings"

// Instruction opens every synthesized description.
const Instruction = "Analyze the following aspects for person re-identification: "

type Appearance struct {
	Include   bool     `json:"include" yaml:"include"`
	SkinColor []string `json:"skin_color" yaml:"skin_color"`
	Height    string   `json:"height" yaml:"height"`
	Build     string   `json:"build" yaml:"build"`
	Custom    string   `json:"custom" yaml:"custom"`
}

type Clothing struct {
	Include     bool     `json:"include" yaml:"include"`
	Top         []string `json:"top" yaml:"top"`
	Bottom      []string `json:"bottom" yaml:"bottom"`
	Footwear    []string `json:"footwear" yaml:"footwear"`
	Accessories []string `json:"accessories" yaml:"accessories"`
	Custom      string   `json:"custom" yaml:"custom"`
}

type PhysicalFeatures struct {
	Include        bool     `json:"include" yaml:"include"`
	HairStyle      []string `json:"hair_style" yaml:"hair_style"`
	HairColor      []string `json:"hair_color" yaml:"hair_color"`
	FacialFeatures []string `json:"facial_features" yaml:"facial_features"`
	Custom         string   `json:"custom" yaml:"custom"`
}

type Behavior struct {
	Include  bool     `json:"include" yaml:"include"`
	Posture  []string `json:"posture" yaml:"posture"`
	Action   []string `json:"action" yaml:"action"`
	Movement []string `json:"movement" yaml:"movement"`
	Custom   string   `json:"custom" yaml:"custom"`
}

type AdditionalDetails struct {
	Include  bool     `json:"include" yaml:"include"`
	Carrying []string `json:"carrying" yaml:"carrying"`
	Location []string `json:"location" yaml:"location"`
	Custom   string   `json:"custom" yaml:"custom"`
}

// Selection is the full input of Synthesize.
type Selection struct {
	Appearance        Appearance        `json:"appearance" yaml:"appearance"`
	Clothing          Clothing          `json:"clothing" yaml:"clothing"`
	PhysicalFeatures  PhysicalFeatures  `json:"physical_features" yaml:"physical_features"`
	Behavior          Behavior          `json:"behavior" yaml:"behavior"`
	AdditionalDetails AdditionalDetails `json:"additional_details" yaml:"additional_details"`
}

// NewSelection returns the builder defaults: every group included, nothing
// selected.
func NewSelection() Selection {
	return Selection{
		Appearance:        Appearance{Include: true},
		Clothing:          Clothing{Include: true},
		PhysicalFeatures:  PhysicalFeatures{Include: true},
		Behavior:          Behavior{Include: true},
		AdditionalDetails: AdditionalDetails{Include: true},
	}
}

type field struct {
	label  string
	values []string
}

type group struct {
	name    string
	include bool
	fields  []field
	custom  string
}

func one(v string) []string {
	if v == "" {
		return nil
	}
	return []string{v}
}

// groups lists the groups in output order. The order is part of the output
// format and must not change.
func (s Selection) groups() []group {
	return []group{
		{"physical appearance", s.Appearance.Include, []field{
			{"skin color", s.Appearance.SkinColor},
			{"height", one(s.Appearance.Height)},
			{"build", one(s.Appearance.Build)},
		}, s.Appearance.Custom},
		{"clothing", s.Clothing.Include, []field{
			{"top", s.Clothing.Top},
			{"bottom", s.Clothing.Bottom},
			{"footwear", s.Clothing.Footwear},
			{"accessories", s.Clothing.Accessories},
		}, s.Clothing.Custom},
		{"physical features", s.PhysicalFeatures.Include, []field{
			{"hair style", s.PhysicalFeatures.HairStyle},
			{"hair color", s.PhysicalFeatures.HairColor},
			{"facial features", s.PhysicalFeatures.FacialFeatures},
		}, s.PhysicalFeatures.Custom},
		{"behavior", s.Behavior.Include, []field{
			{"posture", s.Behavior.Posture},
			{"action", s.Behavior.Action},
			{"movement", s.Behavior.Movement},
		}, s.Behavior.Custom},
		{"additional details", s.AdditionalDetails.Include, []field{
			{"carrying", s.AdditionalDetails.Carrying},
			{"location", s.AdditionalDetails.Location},
		}, s.AdditionalDetails.Custom},
	}
}

// render returns "name (f1, f2, ...)" or "" when the group adds nothing.
func (g group) render() string {
	if !g.include {
		return ""
	}
	var parts []string
	for _, f := range g.fields {
		if len(f.values) > 0 {
			parts = append(parts, f.label+": "+strings.Join(f.values, ", "))
		}
	}
	if g.custom != "" {
		parts = append(parts, g.custom)
	}
	if len(parts) == 0 {
		return ""
	}
	return g.name + " (" + strings.Join(parts, ", ") + ")"
}

// Synthesize compiles sel into a single sentence. It is deterministic and
// total: an empty selection yields the instruction followed by ".".
func Synthesize(sel Selection) string {
	var parts []string
	for _, g := range sel.groups() {
		if r := g.render(); r != "" {
			parts = append(parts, r)
		}
	}
	return Instruction + strings.Join(parts, ", ") + "."
}

package escalation

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Vocabulary is the keyword table the policy matches against. Matching is a
// case-insensitive substring test.
type Vocabulary struct {
	// Brands are restaurant and packaged-food brand names.
	Brands []string `json:"brands"`
	// PortionIndicators are words that suggest a restaurant-sized portion.
	PortionIndicators []string `json:"portion_indicators"`
	// CompositeDishes are words that suggest many components in one dish.
	CompositeDishes []string `json:"composite_dishes"`
}

func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		Brands: []string{
			"mcdonald's", "mcdonalds", "burger king", "wendy's", "wendys", "taco bell", "kfc",
			"chick-fil-a", "subway", "chipotle", "starbucks", "dunkin", "domino's", "dominos",
			"pizza hut", "papa john's", "five guys", "shake shack", "in-n-out", "panera",
			"popeyes", "sweetgreen", "panda express", "jimmy john's", "arby's", "sonic",
			"dairy queen", "tim hortons", "jersey mike's", "qdoba", "wingstop",
		},
		PortionIndicators: []string{
			"combo", "deluxe", "venti", "grande", "supersize", "super size", "large fries",
			"value meal", "double", "triple", "footlong", "extra large", "family size",
		},
		CompositeDishes: []string{"mixed", "combo", "platter", "bowl"},
	}
}

// LoadVocabulary reads a vocabulary from JSON. Lists absent from the document keep their defaults.
func LoadVocabulary(r io.Reader) (Vocabulary, error) {
	v := DefaultVocabulary()
	var in Vocabulary
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return Vocabulary{}, fmt.Errorf("failed to decode vocabulary: %w", err)
	}
	if in.Brands != nil {
		v.Brands = in.Brands
	}
	if in.PortionIndicators != nil {
		v.PortionIndicators = in.PortionIndicators
	}
	if in.CompositeDishes != nil {
		v.CompositeDishes = in.CompositeDishes
	}
	return v, nil
}

// firstMatch returns the first word from words found in any of the texts.
func firstMatch(words []string, texts ...string) (string, bool) {
	for _, w := range words {
		lw := strings.ToLower(strings.TrimSpace(w))
		if lw == "" {
			continue
		}
		for _, t := range texts {
			if strings.Contains(strings.ToLower(t), lw) {
				return w, true
			}
		}
	}
	return "", false
}

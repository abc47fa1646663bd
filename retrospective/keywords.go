package retrospective

import (
	"strings"
	"unicode"
)

// Keyword maps food words to a typical meal. Words match whole words or phrases,
// case-insensitively.
type Keyword struct {
	Words    []string
	Name     string
	Calories int
	ProteinG float64
	CarbsG   float64
	FatG     float64
}

// GenericMeal is used for segments no keyword matches.
var GenericMeal = Keyword{Name: "Meal", Calories: 500, ProteinG: 25, CarbsG: 55, FatG: 20}

// DefaultKeywords is checked in order and the first match wins, so more specific
// phrases come before the words they contain.
func DefaultKeywords() []Keyword {
	return []Keyword{
		{Words: []string{"chicken salad"}, Name: "Chicken Salad", Calories: 450, ProteinG: 35, CarbsG: 15, FatG: 25},
		{Words: []string{"caesar", "salad"}, Name: "Salad", Calories: 250, ProteinG: 8, CarbsG: 20, FatG: 15},
		{Words: []string{"grilled chicken", "chicken"}, Name: "Grilled Chicken", Calories: 350, ProteinG: 45, CarbsG: 5, FatG: 15},
		{Words: []string{"eggs", "egg", "omelet", "omelette", "toast"}, Name: "Eggs & Toast", Calories: 350, ProteinG: 20, CarbsG: 30, FatG: 16},
		{Words: []string{"oatmeal", "porridge", "oats"}, Name: "Oatmeal", Calories: 300, ProteinG: 10, CarbsG: 54, FatG: 6},
		{Words: []string{"pancakes", "pancake", "waffles", "waffle"}, Name: "Pancakes", Calories: 520, ProteinG: 12, CarbsG: 80, FatG: 16},
		{Words: []string{"cereal", "granola"}, Name: "Cereal", Calories: 280, ProteinG: 8, CarbsG: 50, FatG: 5},
		{Words: []string{"yogurt", "yoghurt"}, Name: "Yogurt", Calories: 180, ProteinG: 15, CarbsG: 20, FatG: 4},
		{Words: []string{"smoothie", "shake"}, Name: "Smoothie", Calories: 300, ProteinG: 10, CarbsG: 55, FatG: 5},
		{Words: []string{"sandwich", "wrap", "sub"}, Name: "Sandwich", Calories: 450, ProteinG: 22, CarbsG: 45, FatG: 18},
		{Words: []string{"burger", "cheeseburger", "hamburger"}, Name: "Burger", Calories: 650, ProteinG: 30, CarbsG: 45, FatG: 35},
		{Words: []string{"pizza"}, Name: "Pizza", Calories: 700, ProteinG: 28, CarbsG: 80, FatG: 28},
		{Words: []string{"pasta", "spaghetti", "lasagna", "noodles"}, Name: "Pasta", Calories: 600, ProteinG: 20, CarbsG: 85, FatG: 18},
		{Words: []string{"burrito", "tacos", "taco", "quesadilla"}, Name: "Burrito", Calories: 650, ProteinG: 28, CarbsG: 75, FatG: 25},
		{Words: []string{"sushi"}, Name: "Sushi", Calories: 450, ProteinG: 20, CarbsG: 70, FatG: 8},
		{Words: []string{"stir fry", "fried rice", "rice"}, Name: "Rice Dish", Calories: 550, ProteinG: 20, CarbsG: 80, FatG: 15},
		{Words: []string{"soup", "stew", "chili"}, Name: "Soup", Calories: 300, ProteinG: 15, CarbsG: 30, FatG: 12},
		{Words: []string{"steak"}, Name: "Steak", Calories: 600, ProteinG: 50, CarbsG: 0, FatG: 42},
		{Words: []string{"salmon", "fish", "tuna"}, Name: "Fish", Calories: 450, ProteinG: 40, CarbsG: 5, FatG: 28},
		{Words: []string{"apple", "banana", "orange", "fruit", "berries"}, Name: "Fruit", Calories: 100, ProteinG: 1, CarbsG: 25, FatG: 0},
		{Words: []string{"chips", "crackers", "snack", "nuts"}, Name: "Snack", Calories: 200, ProteinG: 4, CarbsG: 22, FatG: 11},
		{Words: []string{"coffee", "latte", "cappuccino"}, Name: "Coffee", Calories: 120, ProteinG: 6, CarbsG: 12, FatG: 5},
	}
}

// classify returns the first keyword found in text, or false.
func classify(keywords []Keyword, text string) (Keyword, bool) {
	padded := " " + wordsOnly(text) + " "
	for _, k := range keywords {
		for _, w := range k.Words {
			if strings.Contains(padded, " "+strings.ToLower(w)+" ") {
				return k, true
			}
		}
	}
	return Keyword{}, false
}

// wordsOnly lowercases text and collapses everything but letters and digits to single spaces.
func wordsOnly(text string) string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	return strings.Join(fields, " ")
}

// splitters break a description into naive segments.
var splitters = map[string]bool{"and": true, "then": true, "plus": true, "later": true, "afterwards": true}

// segments splits on punctuation, then on conjunction words.
func segments(description string) []string {
	var out []string
	pieces := strings.FieldsFunc(description, func(r rune) bool {
		return strings.ContainsRune(",;.!?\n", r)
	})
	for _, piece := range pieces {
		var cur []string
		flush := func() {
			if len(cur) > 0 {
				out = append(out, strings.Join(cur, " "))
				cur = nil
			}
		}
		for _, word := range strings.Fields(piece) {
			if splitters[strings.ToLower(word)] {
				flush()
				continue
			}
			cur = append(cur, word)
		}
		flush()
	}
	return out
}

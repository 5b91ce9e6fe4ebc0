// Package classify derives categories and organization acronyms from
// notice text.
package classify

import (
	"fmt"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultCategory is assigned when no keyword matches
const DefaultCategory = "Other"

// Rule maps a category to the keywords that select it
type Rule struct {
	Category string
	Keywords []string
}

// Rules is evaluated in order; the first matching keyword wins.
var Rules = []Rule{
	{Category: "Works", Keywords: []string{
		"construção", "reforma", "obra", "edificação", "pavimentação",
		"construction", "renovation", "paving",
	}},
	{Category: "Services", Keywords: []string{
		"serviço", "manutenção", "consultoria", "assessoria",
		"service", "maintenance", "consulting",
	}},
	{Category: "IT", Keywords: []string{
		"software", "computador", "informática", "sistema", "tecnologia",
		"computer", "technology",
	}},
	{Category: "Health", Keywords: []string{
		"medicamento", "hospital", "médico", "saúde", "farmacêutico",
		"medicine", "medical", "health", "pharmaceutical",
	}},
	{Category: "Food", Keywords: []string{
		"alimentação", "alimento", "refeição", "merenda",
		"food", "meal",
	}},
	{Category: "Equipment", Keywords: []string{
		"equipamento", "mobiliário", "móveis", "máquina",
		"equipment", "furniture", "machine",
	}},
}

// Categorize returns the category for a notice description. It is total:
// every input, including the empty string, maps to some category.
func Categorize(description string) string {
	text := strings.ToLower(description)
	for _, rule := range Rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(text, kw) {
				return rule.Category
			}
		}
	}
	return DefaultCategory
}

// Describe returns the description stored when a category is first created.
func Describe(category string) string {
	if category == DefaultCategory {
		return "Default category for unclassified notices"
	}
	return fmt.Sprintf("Notices related to %s", category)
}

var stopWords = []string{"de", "da", "do", "das", "dos", "e", "a", "o", "as", "os"}

// Acronym builds an organization acronym from the first letter of each
// significant word. Stop-words and words under three runes are skipped, so
// the result may be empty.
func Acronym(name string) string {
	var b strings.Builder
	for _, word := range strings.Fields(name) {
		word = strings.ToLower(word)
		if utf8.RuneCountInString(word) < 3 || slices.Contains(stopWords, word) {
			continue
		}
		first, _ := utf8.DecodeRuneInString(word)
		b.WriteRune(unicode.ToUpper(first))
	}
	return b.String()
}

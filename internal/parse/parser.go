// Package parse implements the fast deterministic expense parser.
//
// It extracts (label, amount) items from free-form text without any
// classifier call, so it is never rate limited. The pipeline uses it
// first and only escalates to the classifier when parsing is not
// confident.
package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kakei/kakeibot/internal/common"
	"github.com/kakei/kakeibot/internal/model"
)

// Item is one parsed expense: a merchant/label, an amount in minor
// units, and a category when the label is recognized.
type Item struct {
	Label    string
	Category string
	Amount   int64
}

// Result is the outcome of a deterministic parse. Items are in message
// order; their index is the ordinal used for idempotency sub-keys.
type Result struct {
	Items     []Item
	Confident bool
}

var (
	// segmentSplit separates multi-amount messages: "lunch 200 and uber 100".
	segmentSplit = regexp.MustCompile(`(?i)\s+and\s+|\s*[,、]\s*`)
	// amountToken matches a money amount with optional two decimals.
	amountToken = regexp.MustCompile(`-?\d+(?:\.\d{1,2})?`)
	// fillerWords are stripped from labels before categorization.
	fillerWords = map[string]bool{
		"on": true, "for": true, "at": true, "a": true, "the": true,
		"spent": true, "paid": true, "bought": true,
		"yen": true, "jpy": true,
	}
)

// keywordCategories maps recognized labels to categories. Mirrors the
// vocabulary the chat bot's users actually type.
var keywordCategories = map[string]string{
	"coffee":      "food",
	"lunch":       "food",
	"dinner":      "food",
	"breakfast":   "food",
	"grocery":     "food",
	"groceries":   "food",
	"snack":       "food",
	"taxi":        "transport",
	"uber":        "transport",
	"train":       "transport",
	"bus":         "transport",
	"gas":         "transport",
	"movie":       "entertainment",
	"game":        "entertainment",
	"book":        "entertainment",
	"rent":        "housing",
	"electricity": "utilities",
	"water":       "utilities",
	"internet":    "utilities",
	"phone":       "utilities",
	"doctor":      "health",
	"pharmacy":    "health",
}

// ParseAmount converts a textual amount to minor units. Malformed,
// negative, zero, or out-of-range amounts fail with ErrInvalidAmount.
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(s, "¥"), "$"))
	if s == "" {
		return 0, fmt.Errorf("%w: empty amount", common.ErrInvalidAmount)
	}

	whole := s
	var frac string
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
		if len(frac) == 0 || len(frac) > 2 {
			return 0, fmt.Errorf("%w: %q", common.ErrInvalidAmount, s)
		}
	}

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", common.ErrInvalidAmount, s)
	}
	if units < 0 {
		return 0, fmt.Errorf("%w: negative amount %q", common.ErrInvalidAmount, s)
	}

	minor := units
	if frac != "" {
		// Bound the whole part before scaling so the multiplication
		// cannot overflow and wrap back into the accepted range.
		if units > model.MaxAmount/100 {
			return 0, fmt.Errorf("%w: %q out of range", common.ErrInvalidAmount, s)
		}
		cents, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", common.ErrInvalidAmount, s)
		}
		if len(frac) == 1 {
			cents *= 10
		}
		minor = units*100 + cents
	}

	if !model.ValidAmount(minor) {
		return 0, fmt.Errorf("%w: %q out of range", common.ErrInvalidAmount, s)
	}
	return minor, nil
}

// Parse attempts a deterministic extraction of expense items from text.
// It is confident only when every segment yields exactly one amount and
// a non-empty label.
func Parse(text string) Result {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}
	}

	segments := segmentSplit.Split(text, -1)
	items := make([]Item, 0, len(segments))

	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			return Result{}
		}

		amounts := amountToken.FindAllString(seg, -1)
		if len(amounts) != 1 {
			return Result{}
		}

		amount, err := ParseAmount(amounts[0])
		if err != nil {
			return Result{}
		}

		label := cleanLabel(amountToken.ReplaceAllString(seg, " "))
		if label == "" {
			return Result{}
		}

		items = append(items, Item{
			Label:    label,
			Category: Categorize(label),
			Amount:   amount,
		})
	}

	return Result{Items: items, Confident: true}
}

// Categorize returns the category for a label, or empty when the label
// is not recognized.
func Categorize(label string) string {
	for _, word := range strings.Fields(strings.ToLower(label)) {
		if cat, ok := keywordCategories[word]; ok {
			return cat
		}
	}
	return ""
}

func cleanLabel(s string) string {
	words := strings.Fields(strings.ToLower(s))
	kept := make([]string, 0, len(words))
	for _, w := range words {
		if fillerWords[w] {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

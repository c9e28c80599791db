package ratelimit

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Category classifies supported payload types for the purpose of rate
// limiting and discard accounting.
//
// Reference:
// https://develop.sentry.dev/sdk/expected-features/rate-limiting/#definitions
type Category string

const (
	// CategoryAll is a sentinel matching every category. Limits stored under
	// it apply globally.
	CategoryAll Category = ""

	CategoryError       Category = "error"
	CategoryTransaction Category = "transaction"
	CategoryAttachment  Category = "attachment"
	CategoryMonitor     Category = "monitor"
	CategoryInternal    Category = "internal"

	// CategoryDefault is the fallback for payload kinds the client does not
	// recognize.
	CategoryDefault Category = "default"
)

// knownCategories is the set of currently known categories. Other categories
// are ignored for the purpose of rate limiting.
var knownCategories = map[Category]struct{}{
	CategoryAll:         {},
	CategoryError:       {},
	CategoryTransaction: {},
	CategoryAttachment:  {},
	CategoryMonitor:     {},
	CategoryInternal:    {},
	CategoryDefault:     {},
}

// FromItemType maps an envelope item type to its data category.
// Unrecognized item types map to CategoryDefault.
func FromItemType(itemType string) Category {
	switch itemType {
	case "event":
		return CategoryError
	case "transaction":
		return CategoryTransaction
	case "attachment":
		return CategoryAttachment
	case "check_in":
		return CategoryMonitor
	case "client_report":
		return CategoryInternal
	default:
		return CategoryDefault
	}
}

// String returns the category formatted for debugging.
func (c Category) String() string {
	switch c {
	case "":
		return "CategoryAll"
	default:
		caser := cases.Title(language.English)
		rv := "Category"
		for _, w := range strings.Fields(string(c)) {
			rv += caser.String(w)
		}
		return rv
	}
}

package orchestrator

import "strings"

// Category buckets provider failures into actionable groups. The category is
// persisted as the job's failure code and drives the user-facing message.
type Category string

const (
	CategoryAuthentication       Category = "authentication"
	CategoryInsufficientCredit   Category = "insufficient_credit"
	CategoryInvalidConfiguration Category = "invalid_configuration"
	CategoryRateLimited          Category = "rate_limited"
	CategoryProviderInternal     Category = "provider_internal"
	CategoryTimeout              Category = "timeout"
	CategoryPollingFailed        Category = "polling_failed"
	CategoryUnknown              Category = "unknown"
)

// Classification pairs a failure category with a user-presentable message.
type Classification struct {
	Category    Category
	UserMessage string
}

// Kling numeric failure codes observed in production responses.
var codeCategories = map[string]Category{
	"401":  CategoryAuthentication,
	"403":  CategoryAuthentication,
	"1000": CategoryAuthentication,
	"1002": CategoryAuthentication,
	"402":  CategoryInsufficientCredit,
	"1101": CategoryInsufficientCredit,
	"1102": CategoryInsufficientCredit,
	"400":  CategoryInvalidConfiguration,
	"422":  CategoryInvalidConfiguration,
	"1201": CategoryInvalidConfiguration,
	"1300": CategoryInvalidConfiguration,
	"429":  CategoryRateLimited,
	"1302": CategoryRateLimited,
	"1303": CategoryRateLimited,
	"500":  CategoryProviderInternal,
	"503":  CategoryProviderInternal,
	"5000": CategoryProviderInternal,
}

// Fallback substring hints for responses without a usable code. Checked in
// order; more specific hints first.
var messageHints = []struct {
	substr   string
	category Category
}{
	{"api key", CategoryAuthentication},
	{"unauthorized", CategoryAuthentication},
	{"authentication", CategoryAuthentication},
	{"insufficient", CategoryInsufficientCredit},
	{"credit", CategoryInsufficientCredit},
	{"balance", CategoryInsufficientCredit},
	{"quota", CategoryInsufficientCredit},
	{"rate limit", CategoryRateLimited},
	{"too many requests", CategoryRateLimited},
	{"invalid", CategoryInvalidConfiguration},
	{"unsupported", CategoryInvalidConfiguration},
	{"parameter", CategoryInvalidConfiguration},
	{"internal error", CategoryProviderInternal},
	{"server error", CategoryProviderInternal},
	{"timeout", CategoryProviderInternal},
}

var userMessages = map[Category]string{
	CategoryAuthentication:       "The generation service rejected our credentials. Please contact support.",
	CategoryInsufficientCredit:   "The generation service account is out of credit. Please contact support.",
	CategoryInvalidConfiguration: "The request was rejected by the generation service. Please adjust your settings and try again.",
	CategoryRateLimited:          "The generation service is busy. Please try again in a few minutes.",
	CategoryProviderInternal:     "The generation service ran into an internal error. Please try again.",
	CategoryTimeout:              "Generation took too long and was stopped. Please try again.",
	CategoryPollingFailed:        "We lost contact with the generation service. Please try again.",
	CategoryUnknown:              "Generation failed.",
}

// Classify maps a provider failure code and message to a category with a
// user-presentable message. It is total: any input yields a classification,
// unmatched failures fall through to CategoryUnknown with the raw message
// passed along untranslated.
func Classify(code, message string) Classification {
	code = strings.TrimSpace(code)
	// Settlements raised inside the orchestrator carry the category name as
	// the code already; keep it instead of re-deriving from the message.
	if c := Category(code); c != CategoryUnknown {
		if msg, ok := userMessages[c]; ok {
			return Classification{Category: c, UserMessage: msg}
		}
	}
	if category, ok := codeCategories[code]; ok {
		return Classification{Category: category, UserMessage: userMessages[category]}
	}
	lower := strings.ToLower(message)
	for _, hint := range messageHints {
		if strings.Contains(lower, hint.substr) {
			return Classification{Category: hint.category, UserMessage: userMessages[hint.category]}
		}
	}
	msg := strings.TrimSpace(message)
	if msg == "" {
		msg = userMessages[CategoryUnknown]
	}
	return Classification{Category: CategoryUnknown, UserMessage: msg}
}

// UserMessageFor returns the canonical user message of a category. Unknown
// categories fall back to the generic failure message.
func UserMessageFor(c Category) string {
	if msg, ok := userMessages[c]; ok {
		return msg
	}
	return userMessages[CategoryUnknown]
}

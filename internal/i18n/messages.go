package i18n

import (
	"golang.org/x/text/language"

	"server/internal/orchestrator"
)

var supported = []language.Tag{
	language.English,
	language.Indonesian,
}

var matcher = language.NewMatcher(supported)

// Localized failure messages per category. English doubles as the fallback;
// the classifier's message is used when a category has no entry.
var catalogs = map[language.Tag]map[orchestrator.Category]string{
	language.Indonesian: {
		orchestrator.CategoryAuthentication:       "Layanan pembuatan menolak kredensial kami. Silakan hubungi dukungan.",
		orchestrator.CategoryInsufficientCredit:   "Kredit layanan pembuatan habis. Silakan hubungi dukungan.",
		orchestrator.CategoryInvalidConfiguration: "Permintaan ditolak oleh layanan pembuatan. Silakan sesuaikan pengaturan dan coba lagi.",
		orchestrator.CategoryRateLimited:          "Layanan pembuatan sedang sibuk. Silakan coba lagi dalam beberapa menit.",
		orchestrator.CategoryProviderInternal:     "Layanan pembuatan mengalami kesalahan internal. Silakan coba lagi.",
		orchestrator.CategoryTimeout:              "Pembuatan memakan waktu terlalu lama dan dihentikan. Silakan coba lagi.",
		orchestrator.CategoryPollingFailed:        "Kami kehilangan kontak dengan layanan pembuatan. Silakan coba lagi.",
		orchestrator.CategoryUnknown:              "Pembuatan gagal.",
	},
}

// Match resolves a locale string (BCP 47, possibly a bare Accept-Language
// value) to the nearest supported language.
func Match(locale string) language.Tag {
	tag, _ := language.MatchStrings(matcher, locale)
	base, _ := tag.Base()
	for _, s := range supported {
		if sb, _ := s.Base(); sb == base {
			return s
		}
	}
	return language.English
}

// FailureMessage localizes a stored failure for presentation. Failures that
// were never classified (unknown category) keep their stored message so raw
// provider diagnostics survive when no rule matched.
func FailureMessage(locale string, category orchestrator.Category, stored string) string {
	tag := Match(locale)
	if catalog, ok := catalogs[tag]; ok {
		if msg, ok := catalog[category]; ok && category != orchestrator.CategoryUnknown {
			return msg
		}
	}
	if stored != "" {
		return stored
	}
	return orchestrator.UserMessageFor(category)
}

package usecase

import "sort"

const DefaultLanguage = "en"

var languageNames = map[string]string{
	"en": "English",
	"hi": "Hindi",
	"bn": "Bengali",
	"gu": "Gujarati",
	"mr": "Marathi",
	"ta": "Tamil",
	"te": "Telugu",
}

// LanguageName returns the display name of a supported response language.
func LanguageName(code string) (string, bool) {
	name, ok := languageNames[code]
	return name, ok
}

// Languages returns the supported language codes in sorted order.
func Languages() []string {
	out := make([]string, 0, len(languageNames))
	for code := range languageNames {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

package models

import "time"

// Theme selects the popup color scheme.
type Theme string

const (
	ThemeAuto  Theme = "auto"
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// AutoDeleteNever disables the age-based cleanup sweep.
const AutoDeleteNever = "never"

// Settings holds user preferences persisted under the settings key.
type Settings struct {
	Theme Theme `json:"theme"`
	// Language is the interface language code, e.g. "en".
	Language string `json:"language"`
	// AutoDelete is either AutoDeleteNever or a day count such as "7".
	AutoDelete string `json:"autoDelete"`
	// TranslationLangs holds the default translation target languages.
	TranslationLangs []string `json:"translationLangs"`
}

func DefaultSettings() Settings {
	return Settings{
		Theme:            ThemeAuto,
		Language:         "en",
		AutoDelete:       AutoDeleteNever,
		TranslationLangs: []string{
			"en", "de", "fr", "es", "it", "pt", "pl", "da", "cs",
			"sk", "hu", "uk", "tr", "zh", "ja", "id", "ko", "hi",
		},
	}
}

// AutoDeleteHorizon converts the AutoDelete setting into a duration.
// ok is false when cleanup is disabled or the value is unparseable.
func (s Settings) AutoDeleteHorizon() (time.Duration, bool) {
	if s.AutoDelete == "" || s.AutoDelete == AutoDeleteNever {
		return 0, false
	}
	var days int
	for _, r := range s.AutoDelete {
		if r < '0' || r > '9' {
			return 0, false
		}
		days = days*10 + int(r-'0')
	}
	if days <= 0 {
		return 0, false
	}
	return time.Duration(days) * 24 * time.Hour, true
}

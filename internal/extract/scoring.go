package extract

import (
	"strings"
	"unicode"
)

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// scoreAmount favors well-formed monetary values: digits with a two-decimal
// fraction score highest, bare integers lower, anything longer than a
// plausible money string lower still.
func scoreAmount(value string) float64 {
	digits := 0
	for _, r := range value {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	if digits == 0 {
		return 0.1
	}
	score := 0.6
	if idx := strings.LastIndex(value, "."); idx >= 0 && len(value)-idx-1 == 2 {
		score = 0.9
	}
	if digits > 10 {
		score -= 0.3
	}
	return score
}

// scoreDate prefers unambiguous ISO dates over slash and dot formats.
func scoreDate(value string) float64 {
	if isoDate.MatchString(value) {
		return 0.9
	}
	return 0.7
}

// scoreIdentifier scores document/invoice identifiers by length and character
// mix; very short or purely alphabetic matches are likely OCR noise.
func scoreIdentifier(value string) float64 {
	letters, digits := 0, 0
	for _, r := range value {
		switch {
		case unicode.IsLetter(r):
			letters++
		case unicode.IsDigit(r):
			digits++
		}
	}
	switch {
	case len(value) < 4:
		return 0.4
	case digits > 0 && letters > 0:
		return 0.8
	case digits > 0:
		return 0.7
	default:
		return 0.5
	}
}

// scoreName checks that the match looks like a personal name: mostly letters,
// a small number of words.
func scoreName(value string) float64 {
	words := strings.Fields(value)
	if len(words) == 0 || len(words) > 5 {
		return 0.3
	}
	letters, other := 0, 0
	for _, r := range value {
		if unicode.IsLetter(r) || unicode.IsSpace(r) {
			letters++
		} else {
			other++
		}
	}
	if other > letters/4 {
		return 0.4
	}
	if len(words) >= 2 {
		return 0.8
	}
	return 0.6
}

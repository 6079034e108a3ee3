package embedder

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Risk signal labels reported for content a transport may reject.
const (
	SignalInvalidUTF8       = "invalid-utf8"
	SignalNullBytes         = "null-bytes"
	SignalControlCharacters = "control-characters"
	SignalInvisibleUnicode  = "invisible-unicode"
	SignalBidiOverride      = "bidi-override"
	SignalEncodedBlob       = "encoded-blob"
	SignalLongLine          = "very-long-line"
	SignalScriptMarkup      = "script-markup"
	SignalUnclassified      = "unclassified"
)

const (
	encodedBlobRun = 200
	longLineRunes  = 4000
)

// ScreenText rejects text that no provider should receive. Only binary-like
// content is rejected; other signals are left to DetectRiskSignals.
func ScreenText(text string) (bool, []string) {
	var signals []string
	if !utf8.ValidString(text) {
		signals = append(signals, SignalInvalidUTF8)
	}
	if strings.ContainsRune(text, 0) {
		signals = append(signals, SignalNullBytes)
	}
	return len(signals) == 0, signals
}

// DetectRiskSignals labels patterns that content filters commonly trip on.
// The result is sorted in a fixed order and empty when nothing was found.
func DetectRiskSignals(text string) []string {
	var (
		control, invisible, bidi, longLine bool
		run, lineLen                      int
		blob                              bool
	)

	for _, r := range text {
		switch {
		case r == '\n':
			lineLen = 0
		case r == '\t' || r == '\r':
		case r == '\u202a' || r == '\u202b' || r == '\u202c' || r == '\u202d' || r == '\u202e' ||
			r == '\u2066' || r == '\u2067' || r == '\u2068' || r == '\u2069':
			bidi = true
		case r == '\u200b' || r == '\u200c' || r == '\u200d' || r == '\u2060' || r == '\ufeff':
			invisible = true
		case unicode.IsControl(r):
			control = true
		}
		if r != '\n' {
			lineLen++
			if lineLen >= longLineRunes {
				longLine = true
			}
		}

		if isBlobRune(r) {
			run++
			if run >= encodedBlobRun {
				blob = true
			}
		} else {
			run = 0
		}
	}

	var signals []string
	if ok, screened := ScreenText(text); !ok {
		signals = append(signals, screened...)
	}
	if control {
		signals = append(signals, SignalControlCharacters)
	}
	if invisible {
		signals = append(signals, SignalInvisibleUnicode)
	}
	if bidi {
		signals = append(signals, SignalBidiOverride)
	}
	if blob {
		signals = append(signals, SignalEncodedBlob)
	}
	if longLine {
		signals = append(signals, SignalLongLine)
	}
	lower := strings.ToLower(text)
	if strings.Contains(lower, "<script") || strings.Contains(lower, "javascript:") || strings.Contains(lower, "onerror=") {
		signals = append(signals, SignalScriptMarkup)
	}
	return signals
}

func isBlobRune(r rune) bool {
	return r < utf8.RuneSelf && (r == '+' || r == '/' || r == '=' || r == '-' || r == '_' ||
		(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'))
}

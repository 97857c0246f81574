package memory

import (
	"regexp"
	"sort"
	"strings"
)

// PIIType represents the kinds of PII scrubbed before text is remembered
type PIIType string

const (
	PIITypeEmail PIIType = "email"
	PIITypePhone PIIType = "phone"
)

// PIIDetection represents a detected PII instance
type PIIDetection struct {
	Type     PIIType
	Value    string
	StartPos int
	EndPos   int
}

var (
	emailPattern = regexp.MustCompile(`[\w.\-]+@[\w.\-]+\.[a-zA-Z]{2,}`)
	// at least 9 digits-or-separators, starting and ending on a digit
	phonePattern = regexp.MustCompile(`\+?\d[\d\s\-]{7,}\d`)
)

// DetectPII returns all email and phone detections ordered by position
func DetectPII(text string) []PIIDetection {
	var detections []PIIDetection
	for _, m := range emailPattern.FindAllStringIndex(text, -1) {
		detections = append(detections, PIIDetection{Type: PIITypeEmail, Value: text[m[0]:m[1]], StartPos: m[0], EndPos: m[1]})
	}
	for _, m := range phonePattern.FindAllStringIndex(text, -1) {
		detections = append(detections, PIIDetection{Type: PIITypePhone, Value: text[m[0]:m[1]], StartPos: m[0], EndPos: m[1]})
	}

	sort.SliceStable(detections, func(i, j int) bool {
		return detections[i].StartPos < detections[j].StartPos
	})
	return detections
}

// RedactPII replaces emails and phone numbers with placeholders. When two
// detections overlap the earlier one wins.
func RedactPII(text string) string {
	detections := DetectPII(text)
	if len(detections) == 0 {
		return text
	}

	var b strings.Builder
	cursor := 0
	for _, d := range detections {
		if d.StartPos < cursor {
			continue
		}
		b.WriteString(text[cursor:d.StartPos])
		b.WriteString(redactionFor(d.Type))
		cursor = d.EndPos
	}
	b.WriteString(text[cursor:])
	return b.String()
}

func redactionFor(t PIIType) string {
	switch t {
	case PIITypeEmail:
		return "[EMAIL_REDACTED]"
	case PIITypePhone:
		return "[PHONE_REDACTED]"
	default:
		return "[REDACTED]"
	}
}

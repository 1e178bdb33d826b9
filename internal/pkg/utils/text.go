package utils

import "strings"

// MaxTitleLen is max whisper title length in characters
const MaxTitleLen = 80

// PreviewLen is the number of characters shown in a listing preview
const PreviewLen = 80

// Truncate returns first n characters of s
func Truncate(s string, n int) string {
	if n < 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Preview returns first PreviewLen characters with "..." suffix if text is longer
func Preview(s string) string {
	r := []rune(s)
	if len(r) <= PreviewLen {
		return s
	}
	return string(r[:PreviewLen]) + "..."
}

// CleanTitle trims spaces and quotes that a language model may add
// and cuts the title to MaxTitleLen
func CleanTitle(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"'`")
	return Truncate(strings.TrimSpace(s), MaxTitleLen)
}

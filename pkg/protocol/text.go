package protocol

import "unicode/utf8"

// RepairText undoes a common mis-decoding where UTF-8 bytes arrive as one
// rune per byte ("chÃ o" for "chào"). Strings that cannot be such a
// mis-decoding are returned unchanged.
func RepairText(s string) string {
	buf := make([]byte, 0, len(s))
	ascii := true
	for _, r := range s {
		if r > 0xFF {
			return s
		}
		if r >= utf8.RuneSelf {
			ascii = false
		}
		buf = append(buf, byte(r))
	}
	if ascii || !utf8.Valid(buf) {
		return s
	}
	return string(buf)
}

// Package scanner reads single fields out of small JSON payloads without
// decoding them.
package scanner

// ScanStringField returns the string value following the first occurrence
// of key, which must include its quotes. Escaped quotes inside the value are
// not supported; callers fall back to a full decode when ok is false.
func ScanStringField(payload []byte, key []byte) ([]byte, bool) {
	idx := IndexOf(payload, key)
	if idx < 0 {
		return nil, false
	}
	i := idx + len(key)
	for i < len(payload) && IsSpace(payload[i]) {
		i++
	}
	if i >= len(payload) || payload[i] != ':' {
		return nil, false
	}
	i++
	for i < len(payload) && IsSpace(payload[i]) {
		i++
	}
	if i >= len(payload) || payload[i] != '"' {
		return nil, false
	}
	i++
	start := i
	for i < len(payload) && payload[i] != '"' {
		if payload[i] == '\\' {
			return nil, false
		}
		i++
	}
	if i >= len(payload) {
		return nil, false
	}
	return payload[start:i], true
}

func IndexOf(payload []byte, key []byte) int {
	if len(key) == 0 || len(payload) < len(key) {
		return -1
	}
outer:
	for i := 0; i <= len(payload)-len(key); i++ {
		for j := 0; j < len(key); j++ {
			if payload[i+j] != key[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}

func IsSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

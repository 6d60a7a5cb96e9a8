package device

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// ParseCode parses a command code written as exactly two hexadecimal digits.
func ParseCode(s string) (byte, error) {
	if len(s) != 2 {
		return 0, fmt.Errorf("invalid command code %q: expected 2 hex digits", s)
	}

	b, err := hex.DecodeString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid command code %q: %w", s, err)
	}

	return b[0], nil
}

// FormatCode returns the two-digit upper-case hexadecimal form of code.
func FormatCode(code byte) string {
	return strings.ToUpper(hex.EncodeToString([]byte{code}))
}

// ParseValue parses a command value written as hexadecimal digit pairs.
// An empty string is an empty value.
func ParseValue(s string) ([]byte, error) {
	if s == "" {
		return []byte{}, nil
	}

	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid command value %q: %w", s, err)
	}

	return b, nil
}

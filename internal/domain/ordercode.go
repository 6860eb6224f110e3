package domain

import (
	"crypto/rand"
	"regexp"
	"strings"
)

const (
	orderCodePrefix   = "PRIME"
	orderCodeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	orderCodeBlocks   = 3
	orderCodeBlockLen = 4
)

var orderCodePattern = regexp.MustCompile(`^PRIME-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`)

// NewOrderCode returns a code of the form PRIME-XXXX-XXXX-XXXX.
func NewOrderCode() (string, error) {
	var b strings.Builder
	b.WriteString(orderCodePrefix)

	buf := make([]byte, 1)
	for range orderCodeBlocks {
		b.WriteByte('-')
		for n := 0; n < orderCodeBlockLen; {
			if _, err := rand.Read(buf); err != nil {
				return "", err
			}
			// reject the tail so every symbol is equally likely
			if int(buf[0]) >= 256-256%len(orderCodeAlphabet) {
				continue
			}
			b.WriteByte(orderCodeAlphabet[int(buf[0])%len(orderCodeAlphabet)])
			n++
		}
	}

	return b.String(), nil
}

func ValidOrderCode(code string) bool {
	return orderCodePattern.MatchString(code)
}

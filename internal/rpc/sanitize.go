package rpc

import (
	"bytes"
	"unicode/utf8"
)

// legacy field spelling used by older protocol versions
var (
	legacyManagerKey  = []byte(`"manager_pubkey"`)
	currentManagerKey = []byte(`"managerPubkey"`)
)

// Sanitize strips non-printable ASCII control characters from a node
// response, drops invalid UTF-8 bytes, and renames the legacy
// manager_pubkey field so a single decoder shape covers every protocol
// version.
func Sanitize(body []byte) []byte {
	cleaned := make([]byte, 0, len(body))

	for i := 0; i < len(body); {
		r, size := utf8.DecodeRune(body[i:])
		if r == utf8.RuneError && size == 1 {
			i++
			continue
		}
		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			i += size
			continue
		}
		cleaned = append(cleaned, body[i:i+size]...)
		i += size
	}

	return bytes.ReplaceAll(cleaned, legacyManagerKey, currentManagerKey)
}

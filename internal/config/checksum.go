package config

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// ChecksumAddress returns the EIP-55 form of a 20-byte hex address.
func ChecksumAddress(addr string) (string, error) {
	a := strings.TrimSpace(addr)
	if a == "" {
		return "", fmt.Errorf("empty address")
	}
	if strings.HasPrefix(a, "0x") || strings.HasPrefix(a, "0X") {
		a = a[2:]
	}
	if len(a) != 40 {
		return "", fmt.Errorf("bad hex length: %d", len(a))
	}
	if _, err := hex.DecodeString(a); err != nil {
		return "", fmt.Errorf("not hex: %w", err)
	}

	lower := strings.ToLower(a)
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(lower))
	hexhash := hex.EncodeToString(h.Sum(nil))

	out := []byte(lower)
	for i, ch := range out {
		if ch < 'a' || ch > 'f' {
			continue
		}
		// верхний регистр, если полубайт хеша >= 8
		if strings.IndexByte("89abcdef", hexhash[i]) >= 0 {
			out[i] = ch - 'a' + 'A'
		}
	}
	return "0x" + string(out), nil
}

// checkAddress accepts all-lower or all-upper hex as is and requires a
// valid checksum for mixed case.
func checkAddress(addr string) error {
	sum, err := ChecksumAddress(addr)
	if err != nil {
		return err
	}
	body := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(addr), "0x"), "0X")
	if body == strings.ToLower(body) || body == strings.ToUpper(body) {
		return nil
	}
	if body != sum[2:] {
		return fmt.Errorf("bad checksum: %s, want %s", addr, sum)
	}
	return nil
}

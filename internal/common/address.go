package common

import (
	"fmt"
	"regexp"
	"strings"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ErrInvalidAddress is returned for strings that are not EVM addresses.
var ErrInvalidAddress = fmt.Errorf("%w: address must be 0x followed by 40 hex characters", ErrInvalidConfig)

// NormalizeAddress validates an EVM address and returns its lowercase form.
func NormalizeAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if !addressPattern.MatchString(addr) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	return strings.ToLower(addr), nil
}

package gpio

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// DefaultMCPEndpoint is the expander address used when none is given.
const DefaultMCPEndpoint = "1:0"

// ParseMCPEndpoint splits "bus:device" (e.g. "1:0") into its numbers.
func ParseMCPEndpoint(endpoint string) (bus, dev uint8, err error) {
	b, d, ok := strings.Cut(endpoint, ":")
	if !ok {
		return 0, 0, errors.Errorf("mcp23017 endpoint %q: want bus:device", endpoint)
	}
	bn, err := strconv.ParseUint(strings.TrimSpace(b), 10, 8)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "mcp23017 bus %q", b)
	}
	dn, err := strconv.ParseUint(strings.TrimSpace(d), 10, 8)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "mcp23017 device %q", d)
	}
	return uint8(bn), uint8(dn), nil
}

package forge

import (
	"strings"

	"github.com/pkg/errors"
)

// Platform is an os/arch[/variant] build target.
type Platform struct {
	OS      string
	Arch    string
	Variant string
}

// ParsePlatform parses the canonical os/arch[/variant] form. Platform
// strings are validated here, before any RPC is issued.
func ParsePlatform(s string) (Platform, error) {
	parts := strings.Split(s, "/")
	if len(parts) < 2 || len(parts) > 3 {
		return Platform{}, errors.Errorf("invalid platform %q: expected os/arch[/variant]", s)
	}
	for _, part := range parts {
		if part == "" {
			return Platform{}, errors.Errorf("invalid platform %q: empty component", s)
		}
	}
	p := Platform{OS: parts[0], Arch: parts[1]}
	if len(parts) == 3 {
		p.Variant = parts[2]
	}
	return p, nil
}

func (p Platform) String() string {
	if p.Variant != "" {
		return p.OS + "/" + p.Arch + "/" + p.Variant
	}
	return p.OS + "/" + p.Arch
}

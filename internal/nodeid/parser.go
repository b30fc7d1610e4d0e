package nodeid

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// segmentRegex is used to parse a single segment of a path, e.g., `name` or `name[1]`.
var segmentRegex = regexp.MustCompile(`^([a-zA-Z_$][a-zA-Z0-9_$-]*)((?:\[\d+\])*)$`)

// Parse creates a new Address struct by parsing its canonical string representation.
// Repeated indexes (`rows[0][1]`) are split into one segment per index, the
// extra ones carrying an empty name.
func Parse(rawID string) (*Address, error) {
	if rawID == "" {
		return nil, fmt.Errorf("identifier cannot be empty")
	}

	addr := &Address{}
	for _, segmentStr := range strings.Split(rawID, ".") {
		if segmentStr == "" {
			return nil, fmt.Errorf("identifier path contains empty segment")
		}

		matches := segmentRegex.FindStringSubmatch(segmentStr)
		if matches == nil {
			return nil, fmt.Errorf("invalid path segment format: %q", segmentStr)
		}

		segment := NewPathSegment(matches[1])
		indexes := strings.Split(strings.TrimSuffix(strings.TrimPrefix(matches[2], "["), "]"), "][")
		if matches[2] == "" {
			addr.Path = append(addr.Path, segment)
			continue
		}
		for i, raw := range indexes {
			index, err := strconv.Atoi(raw)
			if err != nil {
				// Unreachable due to regex `\d+`
				return nil, fmt.Errorf("internal error parsing index: %w", err)
			}
			if i == 0 {
				segment.Index = index
				addr.Path = append(addr.Path, segment)
				continue
			}
			addr.Path = append(addr.Path, NewPathSegmentWithIndex("", index))
		}
	}

	return addr, nil
}

// MustParse is Parse for literals known to be valid; it panics otherwise.
func MustParse(rawID string) *Address {
	addr, err := Parse(rawID)
	if err != nil {
		panic(err)
	}
	return addr
}

// PropertyOf returns the property-level path string for rawID.
func PropertyOf(rawID string) (string, error) {
	addr, err := Parse(rawID)
	if err != nil {
		return "", err
	}
	prop := addr.Property()
	if prop == nil {
		return "", fmt.Errorf("path %q does not name a property", rawID)
	}
	return prop.String(), nil
}

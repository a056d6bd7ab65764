package normalize

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrBadPath is returned by ParsePath for malformed paths.
var ErrBadPath = errors.New("malformed field path")

// SegmentKind distinguishes path segments.
type SegmentKind int

// Segment kinds.
const (
	KindKey SegmentKind = iota
	KindIndex
	KindWildcard
)

// Segment is one step of a field path.
type Segment struct {
	Kind  SegmentKind
	Key   string
	Index int
}

// ParsePath splits a path such as "order.items[0].qty" or "items[*].price".
// A bare "*" segment matches every key of an object.
func ParsePath(p string) ([]Segment, error) {
	if p == "" {
		return nil, fmt.Errorf("%w: empty", ErrBadPath)
	}
	var segs []Segment
	i := 0
	expectKey := true
	for i < len(p) {
		switch {
		case p[i] == '[':
			end := strings.IndexByte(p[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("%w: unclosed bracket in %q", ErrBadPath, p)
			}
			inner := p[i+1 : i+end]
			if inner == "*" {
				segs = append(segs, Segment{Kind: KindWildcard})
			} else {
				n, err := strconv.Atoi(inner)
				if err != nil || n < 0 {
					return nil, fmt.Errorf("%w: bad index %q in %q", ErrBadPath, inner, p)
				}
				segs = append(segs, Segment{Kind: KindIndex, Index: n})
			}
			i += end + 1
			expectKey = false
		case p[i] == '.':
			if expectKey {
				return nil, fmt.Errorf("%w: empty segment in %q", ErrBadPath, p)
			}
			i++
			expectKey = true
			if i == len(p) {
				return nil, fmt.Errorf("%w: trailing dot in %q", ErrBadPath, p)
			}
		default:
			if !expectKey {
				return nil, fmt.Errorf("%w: missing dot in %q", ErrBadPath, p)
			}
			end := strings.IndexAny(p[i:], ".[")
			if end < 0 {
				end = len(p) - i
			}
			key := p[i : i+end]
			if key == "*" {
				segs = append(segs, Segment{Kind: KindWildcard})
			} else {
				segs = append(segs, Segment{Kind: KindKey, Key: key})
			}
			i += end
			expectKey = false
		}
	}
	return segs, nil
}

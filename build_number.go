// build_number.go: Platform build numbers and compatibility ranges
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"math"
	"strconv"
	"strings"
)

// wildcardComponent marks a "*" or "SNAPSHOT" component. It compares
// greater than every numeric component.
const wildcardComponent = math.MaxInt32

// openUntilThreshold is the smallest trailing until-build component that is
// read as an open range ("231.9999" behaves like "231.*").
const openUntilThreshold = 9999

// BuildNumber is a parsed platform build number such as "IC-231.8770.65",
// "231.*" or "232.SNAPSHOT".
type BuildNumber struct {
	ProductCode string
	Components  []int
}

// ParseBuildNumber parses a build number. An optional product code prefix
// ("IC-") is split off; remaining components are dot separated and either
// numeric or a wildcard ("*", "SNAPSHOT").
func ParseBuildNumber(s string) (BuildNumber, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return BuildNumber{}, NewInvalidBuildNumberError(s, nil)
	}

	var bn BuildNumber
	if idx := strings.Index(raw, "-"); idx > 0 {
		bn.ProductCode = raw[:idx]
		raw = raw[idx+1:]
	}

	for _, part := range strings.Split(raw, ".") {
		switch {
		case part == "*" || strings.EqualFold(part, "SNAPSHOT"):
			bn.Components = append(bn.Components, wildcardComponent)
		default:
			n, err := strconv.Atoi(part)
			if err != nil || n < 0 {
				return BuildNumber{}, NewInvalidBuildNumberError(s, err)
			}
			bn.Components = append(bn.Components, n)
		}
	}
	return bn, nil
}

// MustParseBuildNumber is like ParseBuildNumber but panics on error.
// Intended for constants and tests.
func MustParseBuildNumber(s string) BuildNumber {
	bn, err := ParseBuildNumber(s)
	if err != nil {
		panic(err)
	}
	return bn
}

// IsZero reports whether the build number is unset.
func (b BuildNumber) IsZero() bool {
	return len(b.Components) == 0
}

// String renders the build number without the product code.
func (b BuildNumber) String() string {
	parts := make([]string, len(b.Components))
	for i, c := range b.Components {
		if c == wildcardComponent {
			parts[i] = "*"
		} else {
			parts[i] = strconv.Itoa(c)
		}
	}
	return strings.Join(parts, ".")
}

// Compare returns -1, 0 or 1. Components are compared pairwise; when the
// common prefix is equal the longer build number is greater.
func (b BuildNumber) Compare(other BuildNumber) int {
	n := len(b.Components)
	if len(other.Components) < n {
		n = len(other.Components)
	}
	for i := 0; i < n; i++ {
		if c := compareInts(b.Components[i], other.Components[i]); c != 0 {
			return c
		}
	}
	return compareInts(len(b.Components), len(other.Components))
}

// normalizeUntil rewrites an absurdly large trailing component to a wildcard.
func (b BuildNumber) normalizeUntil() BuildNumber {
	if len(b.Components) == 0 {
		return b
	}
	last := len(b.Components) - 1
	if b.Components[last] >= openUntilThreshold && b.Components[last] != wildcardComponent {
		comps := make([]int, len(b.Components))
		copy(comps, b.Components)
		comps[last] = wildcardComponent
		b.Components = comps
	}
	return b
}

// coversUntil reports whether target is within the inclusive upper bound b.
// Components missing from b or set to a wildcard are open.
func (b BuildNumber) coversUntil(target BuildNumber) bool {
	for i, c := range b.Components {
		if c == wildcardComponent {
			return true
		}
		if i >= len(target.Components) {
			return true
		}
		if target.Components[i] != c {
			return target.Components[i] < c
		}
	}
	return true
}

// BuildBound identifies which side of a compatibility range was violated.
type BuildBound int

const (
	BuildBoundNone BuildBound = iota
	BuildBoundSince
	BuildBoundUntil
)

// CheckBuildCompatibility tests since <= target <= until. Empty bounds are
// unbounded. An unparsable bound counts as a violation of that bound and is
// returned together with the parse error.
func CheckBuildCompatibility(since, until string, target BuildNumber) (BuildBound, error) {
	if target.IsZero() {
		return BuildBoundNone, nil
	}
	if strings.TrimSpace(since) != "" {
		sb, err := ParseBuildNumber(since)
		if err != nil {
			return BuildBoundSince, err
		}
		if sb.Compare(target) > 0 {
			return BuildBoundSince, nil
		}
	}
	if strings.TrimSpace(until) != "" {
		ub, err := ParseBuildNumber(until)
		if err != nil {
			return BuildBoundUntil, err
		}
		if !ub.normalizeUntil().coversUntil(target) {
			return BuildBoundUntil, nil
		}
	}
	return BuildBoundNone, nil
}

func compareInts(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

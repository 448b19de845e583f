// version.go: Module version comparison
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"strings"
	"unicode"
)

// qualifierRank orders well-known pre-release and release qualifiers.
// Unknown qualifiers rank between "rc" and a release.
var qualifierRank = map[string]int{
	"snapshot":  0,
	"dev":       1,
	"alpha":     2,
	"a":         2,
	"eap":       3,
	"beta":      4,
	"b":         4,
	"m":         5,
	"milestone": 5,
	"rc":        6,
	"cr":        6,
	"final":     8,
	"release":   8,
	"ga":        8,
}

const unknownQualifierRank = 7

// CompareVersions compares two module versions and returns -1, 0 or 1.
//
// Versions are split on '.', '-', '_' and on digit/letter boundaries.
// Numeric components compare numerically, qualifiers by rank and then
// lexically; a numeric component is greater than a qualifier. When one
// version is a prefix of the other, the longer one is greater unless its
// next component is a pre-release qualifier ("1.0" > "1.0-beta").
func CompareVersions(a, b string) int {
	ta, tb := tokenizeVersion(a), tokenizeVersion(b)
	n := len(ta)
	if len(tb) < n {
		n = len(tb)
	}
	for i := 0; i < n; i++ {
		if c := compareVersionTokens(ta[i], tb[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(ta) > n:
		return tailSign(ta[n])
	case len(tb) > n:
		return -tailSign(tb[n])
	default:
		return 0
	}
}

// tailSign is the sign of "longer vs shorter" decided by the first extra token.
func tailSign(next string) int {
	if isNumericToken(next) {
		return 1
	}
	if rankOf(next) < qualifierRank["final"] {
		return -1
	}
	return 1
}

func compareVersionTokens(x, y string) int {
	xn, yn := isNumericToken(x), isNumericToken(y)
	switch {
	case xn && yn:
		return compareNumericTokens(x, y)
	case xn:
		return 1
	case yn:
		return -1
	}
	if c := compareInts(rankOf(x), rankOf(y)); c != 0 {
		return c
	}
	return strings.Compare(strings.ToLower(x), strings.ToLower(y))
}

func compareNumericTokens(x, y string) int {
	x = strings.TrimLeft(x, "0")
	y = strings.TrimLeft(y, "0")
	if c := compareInts(len(x), len(y)); c != 0 {
		return c
	}
	return strings.Compare(x, y)
}

func rankOf(q string) int {
	if r, ok := qualifierRank[strings.ToLower(q)]; ok {
		return r
	}
	return unknownQualifierRank
}

func isNumericToken(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func tokenizeVersion(v string) []string {
	var tokens []string
	var cur strings.Builder
	curDigit := false
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range strings.TrimSpace(v) {
		switch {
		case r == '.' || r == '-' || r == '_' || r == '+':
			flush()
		default:
			digit := unicode.IsDigit(r)
			if cur.Len() > 0 && digit != curDigit {
				flush()
			}
			curDigit = digit
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}

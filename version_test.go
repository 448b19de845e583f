// version_test.go: Version comparison tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0", "1.0", 0},
		{"1.0", "2.0", -1},
		{"1.10", "1.9", 1},
		{"1.0.1", "1.0", 1},
		{"1.0", "1.0-beta", 1},
		{"1.0-alpha", "1.0-beta", -1},
		{"1.0-rc1", "1.0-beta2", 1},
		{"1.0-SNAPSHOT", "1.0-alpha", -1},
		{"1.0-final", "1.0-rc", 1},
		{"2.0b1", "2.0b2", -1},
		{"1.0.0", "1.0.final", 1},
		{"007", "7", 0},
		{"", "1.0", -1},
	}

	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, CompareVersions(tt.a, tt.b))
			assert.Equal(t, -tt.want, CompareVersions(tt.b, tt.a))
		})
	}
}

// Copyright 2025 The PinMap Authors
// SPDX-License-Identifier: Apache-2.0

package textutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLowerASCIIFolding(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  Ostrava  ", "ostrava"},
		{"Frýdek-Místek", "frydek-mistek"},
		{"ŁÓDŹ", "łodz"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, LowerASCIIFolding(tt.in))
		})
	}
}

func TestCollapseSpaces(t *testing.T) {
	assert.Equal(t, "Hlavní 12", CollapseSpaces(" Hlavní\t\n 12 "))
	assert.Equal(t, "a b", CollapseSpaces("a\u00a0b"))
	assert.Equal(t, "", CollapseSpaces("   "))
}

func TestFormatInt(t *testing.T) {
	tests := map[int64]string{
		0:        "0",
		999:      "999",
		1000:     "1,000",
		-1234567: "-1,234,567",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatInt(in))
	}
}

func TestFormatMoney(t *testing.T) {
	tests := map[float64]string{
		0:         "0.00",
		1234.5:    "1,234.50",
		1000000:   "1,000,000.00",
		-12.5:     "-12.50",
		-0.001:    "0.00",
		99.999:    "100.00",
		1234567.8: "1,234,567.80",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatMoney(in))
	}
}

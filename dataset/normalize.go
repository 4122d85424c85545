// Copyright 2025 The PinMap Authors
// SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/pinmap/pinmap/spatial"
	"github.com/pinmap/pinmap/utils/textutils"
	"golang.org/x/text/unicode/norm"
)

// sentinels are cell values spreadsheets and dataframe exports use to mean
// "nothing here".
var sentinels = map[string]bool{
	"0":    true,
	"-":    true,
	"nan":  true,
	"none": true,
	"null": true,
	"n/a":  true,
	"#n/a": true,
}

// maxRescaleSteps bounds the coordinate rescaling heuristic.
const maxRescaleSteps = 12

// NormalizeField cleans a raw cell: NFKC (turns non-breaking spaces into
// plain ones), collapses white space, trims, and maps sentinel values to "".
func NormalizeField(s string) string {
	s = textutils.CollapseSpaces(norm.NFKC.String(s))
	if sentinels[strings.ToLower(s)] {
		return ""
	}

	return s
}

// NormalizeAddress normalizes a single-line address. It is idempotent:
// trimming separators can expose a sentinel ("0," becomes "0"), so the
// cleanup repeats until nothing changes.
func NormalizeAddress(s string) string {
	for {
		next := textutils.CollapseSpaces(strings.Trim(NormalizeField(s), ", "))
		if sentinels[strings.ToLower(next)] {
			next = ""
		}

		if next == s {
			return next
		}

		s = next
	}
}

// CanonicalAddress builds "{street}, {city} {postal}" from the raw parts.
// The postal code loses its inner spaces. Empty parts leave no dangling
// separators; an address with no usable part is "".
func CanonicalAddress(street, city, postal string) string {
	postal = strings.ReplaceAll(NormalizeField(postal), " ", "")

	return NormalizeAddress(NormalizeField(street) + ", " + NormalizeField(city) + " " + postal)
}

// CacheKey is the key geocoding results are stored under. Addresses that
// normalize to the same canonical form share a key regardless of case or
// diacritics.
func CacheKey(address string) string {
	return textutils.LowerASCIIFolding(NormalizeAddress(address))
}

// ParseCoordinate parses a latitude or longitude cell. Comma decimals and
// stray spaces are accepted; anything unparsable is reported as absent.
func ParseCoordinate(raw string) (float64, bool) {
	s := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}

		return r
	}, norm.NFKC.String(raw))

	if s == "" || (sentinels[strings.ToLower(s)] && s != "0") {
		return 0, false
	}

	s = strings.ReplaceAll(s, ",", ".")

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}

	return v, true
}

// ParsePoint parses both halves of a coordinate. A pair where only one side
// parses is treated as absent.
func ParsePoint(rawLat, rawLng string) *spatial.Point {
	lat, okLat := ParseCoordinate(rawLat)
	lng, okLng := ParseCoordinate(rawLng)

	if !okLat || !okLng {
		return nil
	}

	return &spatial.Point{Lat: lat, Lng: lng}
}

// Rescale is a best-effort recovery for coordinates that lost their decimal
// separator upstream (49201234 instead of 49.201234): each axis outside the
// region is divided by ten until it fits. It returns nil when no scaling
// brings the point into the region.
func Rescale(p *spatial.Point, region spatial.Region) *spatial.Point {
	if p == nil {
		return nil
	}

	if region.Contains(p) {
		return p
	}

	lat, okLat := rescaleAxis(p.Lat, region.MinLat, region.MaxLat)
	lng, okLng := rescaleAxis(p.Lng, region.MinLng, region.MaxLng)

	if !okLat || !okLng {
		return nil
	}

	return &spatial.Point{Lat: lat, Lng: lng}
}

func rescaleAxis(v, lo, hi float64) (float64, bool) {
	for range maxRescaleSteps {
		if v >= lo && v <= hi {
			return v, true
		}

		if math.Abs(v) < math.Max(math.Abs(lo), math.Abs(hi)) {
			return 0, false
		}

		v /= 10
	}

	return v, v >= lo && v <= hi
}

// ParseAmount parses a monetary cell such as "1 234,50 Kč" or "1,234.50".
// The last '.' or ',' followed by one or two digits is the decimal
// separator; other separators are grouping. Returns nil when no number can
// be read.
func ParseAmount(raw string) *float64 {
	s := NormalizeField(raw)
	if s == "" {
		if strings.TrimSpace(raw) == "0" {
			zero := 0.0

			return &zero
		}

		return nil
	}

	var b strings.Builder

	for _, r := range s {
		if unicode.IsDigit(r) || r == '.' || r == ',' || r == '-' {
			b.WriteRune(r)
		}
	}

	digits := b.String()

	sep := strings.LastIndexAny(digits, ".,")
	if sep >= 0 && len(digits)-sep-1 <= 2 && len(digits)-sep-1 > 0 {
		intPart := strings.NewReplacer(".", "", ",", "").Replace(digits[:sep])
		digits = intPart + "." + digits[sep+1:]
	} else {
		digits = strings.NewReplacer(".", "", ",", "").Replace(digits)
	}

	v, err := strconv.ParseFloat(digits, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}

	return &v
}

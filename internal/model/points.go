package model

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
)

// Points is a point value or score counted in tenths of a point, so sums
// are exact and one-decimal precision is built in.
type Points int64

const pointScale = 10

// PointsFromFloat rounds f to the nearest tenth, halves away from zero.
func PointsFromFloat(f float64) Points {
	return Points(math.Round(f * pointScale))
}

// ParsePoints parses an unsigned integer or a number with exactly one
// decimal digit ("2", "0.5", "12.0").
func ParsePoints(s string) (Points, error) {
	if s == "" {
		return 0, errors.New("empty number")
	}
	whole, frac := s, ""
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			whole, frac = s[:i], s[i+1:]
			break
		}
	}
	if whole == "" || len(whole) > 9 || !allDigits(whole) {
		return 0, errors.New("not a number")
	}
	if len(s) > len(whole) && (len(frac) != 1 || !allDigits(frac)) {
		return 0, errors.New("at most one decimal place is allowed")
	}
	n, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, err
	}
	p := Points(n * pointScale)
	if frac != "" {
		p += Points(frac[0] - '0')
	}
	return p, nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Float64 returns p as a floating point number of points.
func (p Points) Float64() float64 {
	return float64(p) / pointScale
}

// Clamp bounds p to [0, max].
func (p Points) Clamp(max Points) Points {
	if p < 0 {
		return 0
	}
	if p > max {
		return max
	}
	return p
}

// String formats p without a decimal part when it is a whole number.
func (p Points) String() string {
	if p%pointScale == 0 {
		return strconv.FormatInt(int64(p/pointScale), 10)
	}
	return strconv.FormatFloat(p.Float64(), 'f', 1, 64)
}

// MarshalJSON encodes p as a JSON number of points.
func (p Points) MarshalJSON() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalJSON decodes a JSON number of points, rounding to a tenth.
func (p *Points) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*p = PointsFromFloat(f)
	return nil
}

package qasm

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// piExprRegex matches expressions like: pi, 2pi, 2*pi, pi/2, 3pi/4, 3*pi/4, -pi, -pi/2, -3*pi/4
var piExprRegex = regexp.MustCompile(`^(-?)(\d*\.?\d*)\s*\*?\s*pi(?:\s*/\s*(\d+\.?\d*))?$`)

// ParseAngle parses a gate parameter in radians.
//
// Supported formats:
//   - Plain numbers: "1.5707", "3.14", "-0.5", "3.14e-2"
//   - Pi constant: "pi"
//   - Pi fractions: "pi/2", "pi/4", "pi/3"
//   - Coefficients: "2pi", "2*pi", "3pi/4", "3*pi/4"
//   - Negative: "-pi", "-pi/2", "-3*pi/4"
func ParseAngle(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty angle: %w", ErrSyntax)
	}

	if val, err := strconv.ParseFloat(s, 64); err == nil {
		return val, nil
	}

	matches := piExprRegex.FindStringSubmatch(strings.ToLower(s))
	if matches == nil {
		return 0, fmt.Errorf("angle %q: %w", s, ErrSyntax)
	}
	coeff := 1.0
	if matches[2] != "" {
		var err error
		coeff, err = strconv.ParseFloat(matches[2], 64)
		if err != nil {
			return 0, fmt.Errorf("angle %q: %w", s, ErrSyntax)
		}
	}
	result := coeff * math.Pi
	if matches[3] != "" {
		denom, err := strconv.ParseFloat(matches[3], 64)
		if err != nil || denom == 0 {
			return 0, fmt.Errorf("angle %q: %w", s, ErrSyntax)
		}
		result /= denom
	}
	if matches[1] == "-" {
		result = -result
	}
	return result, nil
}

// ParseAngles parses a comma-separated parameter list. Empty parts are
// skipped.
func ParseAngles(input string) ([]float64, error) {
	var params []float64
	for _, part := range strings.Split(input, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		val, err := ParseAngle(part)
		if err != nil {
			return nil, err
		}
		params = append(params, val)
	}
	return params, nil
}

// FormatAngle formats val in radians, using pi notation for common fractions.
func FormatAngle(val float64) string {
	piForms := []struct {
		value   float64
		display string
	}{
		{2 * math.Pi, "2*pi"},
		{math.Pi, "pi"},
		{math.Pi / 2, "pi/2"},
		{math.Pi / 3, "pi/3"},
		{math.Pi / 4, "pi/4"},
		{math.Pi / 6, "pi/6"},
		{math.Pi / 8, "pi/8"},
		{3 * math.Pi / 4, "3*pi/4"},
		{3 * math.Pi / 2, "3*pi/2"},
		{2 * math.Pi / 3, "2*pi/3"},
	}
	const tol = 1e-10
	for _, pf := range piForms {
		if math.Abs(val-pf.value) < tol {
			return pf.display
		}
		if math.Abs(val+pf.value) < tol {
			return "-" + pf.display
		}
	}
	return strconv.FormatFloat(val, 'g', -1, 64)
}

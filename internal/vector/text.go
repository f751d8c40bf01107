package vector

import (
	"errors"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrInvalidVector is returned when a vector string cannot be parsed.
var ErrInvalidVector = errors.New("invalid vector provided")

// Parse reads a vector in the form "x,y,z". Surrounding brackets and spaces are ignored.
func Parse(s string) (r3.Vec, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")

	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return r3.Vec{}, ErrInvalidVector
	}

	var xyz [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return r3.Vec{}, ErrInvalidVector
		}
		xyz[i] = f
	}
	v := r3.Vec{X: xyz[0], Y: xyz[1], Z: xyz[2]}
	if !Finite(v) {
		return r3.Vec{}, ErrInvalidVector
	}
	return v, nil
}

// Format writes v as "x,y,z" with the shortest exact representation of each component,
// so Parse(Format(v)) == v.
func Format(v r3.Vec) string {
	var b strings.Builder
	b.WriteString(strconv.FormatFloat(v.X, 'g', -1, 64))
	b.WriteByte(',')
	b.WriteString(strconv.FormatFloat(v.Y, 'g', -1, 64))
	b.WriteByte(',')
	b.WriteString(strconv.FormatFloat(v.Z, 'g', -1, 64))
	return b.String()
}

// Package digits implements the fixed-length digit buffer backing a PIN field.
//
// A Buffer is an ordered sequence of cells, each holding either a single
// decimal digit or nothing. Buffers have value semantics: every mutation
// returns a new Buffer and leaves the receiver untouched, so a caller can
// capture a buffer at a point in time (for example, when handing the code to
// a verifier) without worrying about later edits.
package digits

import (
	"errors"
	"fmt"
	"strings"
)

// ErrIndexOutOfRange is returned when a cell index falls outside [0, Len).
// Hitting it means the caller violated the action contract; it is not an
// expected runtime condition.
var ErrIndexOutOfRange = errors.New("digits: index out of range")

// Digit is a single cell value: 0 through 9, or None for an empty cell.
type Digit int8

// None marks an empty cell.
const None Digit = -1

// Valid reports whether d is a real digit (not None).
func (d Digit) Valid() bool {
	return d >= 0 && d <= 9
}

// Rune returns the display rune for d, or 0 for None.
func (d Digit) Rune() rune {
	if !d.Valid() {
		return 0
	}
	return rune('0' + d)
}

// FromRune converts r to a Digit, returning None for non-digit runes.
func FromRune(r rune) Digit {
	if r < '0' || r > '9' {
		return None
	}
	return Digit(r - '0')
}

// Buffer is a fixed-length sequence of optional digits.
// The zero value is an empty zero-length buffer; use New.
type Buffer struct {
	cells []Digit
}

// New returns an empty buffer with the given number of cells.
func New(length int) (Buffer, error) {
	if length < 1 {
		return Buffer{}, fmt.Errorf("digits: invalid buffer length %d", length)
	}
	cells := make([]Digit, length)
	for i := range cells {
		cells[i] = None
	}
	return Buffer{cells: cells}, nil
}

// Len returns the number of cells. It is fixed at creation.
func (b Buffer) Len() int {
	return len(b.cells)
}

// At returns the digit at index i, or None if the cell is empty or i is out
// of range.
func (b Buffer) At(i int) Digit {
	if i < 0 || i >= len(b.cells) {
		return None
	}
	return b.cells[i]
}

// Filled reports whether the cell at index i holds a digit.
func (b Buffer) Filled(i int) bool {
	return b.At(i).Valid()
}

// Set returns a copy of b with the cell at index i holding d.
// Passing None clears the cell. Out-of-range indexes fail with
// ErrIndexOutOfRange.
func (b Buffer) Set(i int, d Digit) (Buffer, error) {
	if i < 0 || i >= len(b.cells) {
		return b, fmt.Errorf("%w: %d (len %d)", ErrIndexOutOfRange, i, len(b.cells))
	}
	if d != None && !d.Valid() {
		return b, fmt.Errorf("digits: invalid digit %d", d)
	}
	cells := make([]Digit, len(b.cells))
	copy(cells, b.cells)
	cells[i] = d
	return Buffer{cells: cells}, nil
}

// Cleared returns an empty buffer of the same length.
func (b Buffer) Cleared() Buffer {
	cells := make([]Digit, len(b.cells))
	for i := range cells {
		cells[i] = None
	}
	return Buffer{cells: cells}
}

// FirstEmpty returns the lowest index holding no digit.
// ok is false when every cell is filled.
func (b Buffer) FirstEmpty() (i int, ok bool) {
	for i, d := range b.cells {
		if !d.Valid() {
			return i, true
		}
	}
	return 0, false
}

// Complete reports whether every cell holds a digit.
func (b Buffer) Complete() bool {
	_, empty := b.FirstEmpty()
	return !empty
}

// String concatenates the filled cells left to right, skipping empty ones.
// The result only represents the entered code when Complete is true;
// callers must check that first.
func (b Buffer) String() string {
	var sb strings.Builder
	sb.Grow(len(b.cells))
	for _, d := range b.cells {
		if d.Valid() {
			sb.WriteRune(d.Rune())
		}
	}
	return sb.String()
}

// FromString rebuilds a buffer of the given length from the cell encoding
// produced by Encode: one byte per cell, '0'-'9' for digits and '-' for an
// empty cell. Used when restoring a snapshot.
func FromString(length int, cells string) (Buffer, error) {
	b, err := New(length)
	if err != nil {
		return Buffer{}, err
	}
	if len(cells) != length {
		return Buffer{}, fmt.Errorf("digits: cell encoding %q does not match length %d", cells, length)
	}
	for i, r := range cells {
		if r == '-' {
			continue
		}
		d := FromRune(r)
		if d == None {
			return Buffer{}, fmt.Errorf("digits: invalid cell %q at index %d", r, i)
		}
		b.cells[i] = d
	}
	return b, nil
}

// Encode returns the snapshot encoding of the buffer: one byte per cell,
// '0'-'9' for digits and '-' for an empty cell.
func (b Buffer) Encode() string {
	out := make([]byte, len(b.cells))
	for i, d := range b.cells {
		if d.Valid() {
			out[i] = byte('0' + d)
		} else {
			out[i] = '-'
		}
	}
	return string(out)
}

package rowstore

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// Separator joins fields of a row
	Separator = ","

	// All is passed to Fetch to get every row. It's never a valid row id.
	All int64 = -1
)

var (
	// ErrCorruptRow is returned when a line in the data file has the wrong
	// number of fields or an invalid id
	ErrCorruptRow = errors.New("corrupt row")
	// ErrInvalidRow is returned when a row given to Insert or Update has
	// the wrong number of fields or a field can't be stored
	ErrInvalidRow = errors.New("invalid row")
)

// Row is a single record. Row[0] is the id.
type Row []string

// ID parses the id field
func (r Row) ID() (int64, error) {
	if len(r) == 0 {
		return 0, fmt.Errorf("%w: empty row", ErrCorruptRow)
	}
	return parseID(r[0])
}

func (r Row) String() string {
	return FormatRow(r)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("%w: invalid id '%s'", ErrCorruptRow, s)
	}
	return id, nil
}

// FormatRow encodes a row as a single line, without the trailing newline
func FormatRow(r Row) string {
	return strings.Join(r, Separator)
}

// ParseRow decodes a line from the data file.
// If nFields > 0, the line must have exactly nFields fields.
func ParseRow(line string, nFields int) (Row, error) {
	parts := strings.Split(line, Separator)
	if nFields > 0 && len(parts) != nFields {
		return nil, fmt.Errorf("%w: expected %d fields, got %d in line '%s'", ErrCorruptRow, nFields, len(parts), line)
	}
	if _, err := parseID(parts[0]); err != nil {
		return nil, fmt.Errorf("%w in line '%s'", err, line)
	}
	return Row(parts), nil
}

// ValidateRow checks that a row given by the caller can be stored.
// The id field is not checked because the store always overwrites it.
func ValidateRow(r Row, nFields int) error {
	if len(r) != nFields {
		return fmt.Errorf("%w: expected %d fields, got %d", ErrInvalidRow, nFields, len(r))
	}
	for i, v := range r[1:] {
		if strings.Contains(v, Separator) {
			return fmt.Errorf("%w: field %d contains '%s'", ErrInvalidRow, i+1, Separator)
		}
		if strings.ContainsAny(v, "\r\n") {
			return fmt.Errorf("%w: field %d contains a newline", ErrInvalidRow, i+1)
		}
	}
	return nil
}

// withID returns a copy of r with the id field set to id
func withID(r Row, id int64) Row {
	res := append(Row{}, r...)
	res[0] = strconv.FormatInt(id, 10)
	return res
}

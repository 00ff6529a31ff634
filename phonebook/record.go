package phonebook

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/kjk/phonebook/rowstore"
)

// NumFields is the number of fields in a row: id, name, email, mobile
const NumFields = 4

// placeholder written in the id field of new rows, the store replaces it
const newRowID = "_"

// ErrInvalidRecord is returned for records that can't be stored
var ErrInvalidRecord = errors.New("invalid record")

// Record is a single phone book entry
type Record struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Mobile int    `json:"mobile"`
}

// RecordFromRow converts a row read from the store
func RecordFromRow(row rowstore.Row) (*Record, error) {
	if len(row) != NumFields {
		return nil, fmt.Errorf("%w: expected %d fields, got %d", rowstore.ErrCorruptRow, NumFields, len(row))
	}
	id, err := row.ID()
	if err != nil {
		return nil, err
	}
	mobile, err := strconv.Atoi(row[3])
	if err != nil {
		return nil, fmt.Errorf("%w: invalid mobile '%s' in row %d", rowstore.ErrCorruptRow, row[3], id)
	}
	return &Record{
		ID:     id,
		Name:   row[1],
		Email:  row[2],
		Mobile: mobile,
	}, nil
}

// Row converts the record to a row
func (r *Record) Row() rowstore.Row {
	return rowstore.Row{strconv.FormatInt(r.ID, 10), r.Name, r.Email, strconv.Itoa(r.Mobile)}
}

// newRow converts a record that isn't stored yet. The id field is a
// placeholder that the store replaces with a generated id.
func (r *Record) newRow() rowstore.Row {
	row := r.Row()
	row[0] = newRowID
	return row
}

// Validate checks that the record can be stored
func (r *Record) Validate() error {
	if err := rowstore.ValidateRow(r.Row(), NumFields); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidRecord, err)
	}
	return nil
}

func (r *Record) String() string {
	return fmt.Sprintf("Record{id: %d, name: '%s', email: '%s', mobile: %d}", r.ID, r.Name, r.Email, r.Mobile)
}

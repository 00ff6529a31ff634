package phonebook

import (
	"fmt"

	"github.com/kjk/phonebook/rowstore"
)

// Database is the storage used by Service, implemented by *rowstore.Store
type Database interface {
	// Fetch returns the row with a given id or all rows for rowstore.All
	Fetch(id int64) ([]rowstore.Row, error)
	// Insert stores a new row and returns its generated id
	Insert(row rowstore.Row) (int64, error)
	// Update replaces the row with a given id, false if not found
	Update(id int64, row rowstore.Row) (bool, error)
	// Delete removes the row with a given id, false if not found
	Delete(id int64) (bool, error)
}

var _ Database = &rowstore.Store{}

// Service maps phone book records to rows of a Database
type Service struct {
	db Database
}

func NewService(db Database) *Service {
	return &Service{db: db}
}

func recordsFromRows(rows []rowstore.Row) ([]*Record, error) {
	res := make([]*Record, 0, len(rows))
	for _, row := range rows {
		rec, err := RecordFromRow(row)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, nil
}

// GetAll returns all records in storage order
func (s *Service) GetAll() ([]*Record, error) {
	rows, err := s.db.Fetch(rowstore.All)
	if err != nil {
		return nil, err
	}
	return recordsFromRows(rows)
}

// Get returns a record with a given id or nil if not found
func (s *Service) Get(id int64) (*Record, error) {
	if id < 0 {
		return nil, nil
	}
	rows, err := s.db.Fetch(id)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return RecordFromRow(rows[0])
}

// Add stores a new record and returns its id. rec.ID is ignored.
func (s *Service) Add(rec *Record) (int64, error) {
	if err := rec.Validate(); err != nil {
		return 0, err
	}
	return s.db.Insert(rec.newRow())
}

// Update replaces the record with rec.ID. Returns false if not found.
func (s *Service) Update(rec *Record) (bool, error) {
	if rec.ID < 0 {
		return false, fmt.Errorf("%w: invalid id %d", ErrInvalidRecord, rec.ID)
	}
	if err := rec.Validate(); err != nil {
		return false, err
	}
	return s.db.Update(rec.ID, rec.Row())
}

// Delete removes the record with a given id. Returns false if not found.
func (s *Service) Delete(id int64) (bool, error) {
	if id < 0 {
		return false, nil
	}
	return s.db.Delete(id)
}

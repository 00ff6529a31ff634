package rowstore

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kjk/phonebook/log"
)

// longest line we accept when reading the data file
const maxLineSize = 1024 * 1024

var (
	// ErrInvalidID is returned by Update and Delete for negative ids
	ErrInvalidID = errors.New("invalid id")
	// ErrNotOpen is returned when using a Store that wasn't opened
	// with OpenStore or was closed
	ErrNotOpen = errors.New("store is not open")
	// ErrLocked is returned by OpenStore if another process has the
	// data file open
	ErrLocked = errors.New("data file is used by another process")
)

type Store struct {
	// Path of the data file, created if it doesn't exist.
	// The directory must exist.
	Path string
	// number of fields in every row, including the id
	Fields int
	// NewID generates ids for Insert. Defaults to RandomID.
	// Must return non-negative values.
	NewID func() int64

	path string // absolute, empty if not open
	lock *fileLock
	mu   sync.RWMutex
}

// one parsed line of the data file
type entry struct {
	id   int64
	row  Row
	line string
}

// OpenStore validates configuration, creates the data file if needed
// and checks that existing content is well-formed
func OpenStore(s *Store) error {
	if s.Path == "" {
		return errors.New("rowstore: Path is not set")
	}
	if s.Fields < 1 {
		return fmt.Errorf("rowstore: Fields must be at least 1, got %d", s.Fields)
	}
	if s.NewID == nil {
		s.NewID = RandomID
	}

	path, err := filepath.Abs(s.Path)
	if err != nil {
		return fmt.Errorf("failed to get absolute path for data file: %w", err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// no MkdirAll: a missing directory is a configuration error
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to create data file: %w", err)
		}
		if err = f.Close(); err != nil {
			return fmt.Errorf("failed to create data file: %w", err)
		}
	} else if err != nil {
		return err
	}

	lock, err := lockFile(path + ".lock")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.path = path
	s.lock = lock

	nRows := 0
	err = s.scan(func(e *entry) bool {
		nRows++
		return true
	})
	if err != nil {
		_ = lock.unlock()
		s.path = ""
		s.lock = nil
		return fmt.Errorf("failed to read rows from data file: %w", err)
	}
	log.Verbosef("rowstore: opened '%s', %d rows\n", path, nRows)
	return nil
}

// Close releases the data file. The Store can't be used afterwards.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.path = ""
	err := s.lock.unlock()
	s.lock = nil
	return err
}

// scan calls fn for every row in file order until fn returns false.
// Must be called with s.mu held.
func (s *Store) scan(fn func(e *entry) bool) error {
	if s.path == "" {
		return ErrNotOpen
	}
	f, err := os.Open(s.path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		row, err := ParseRow(line, s.Fields)
		if err != nil {
			return fmt.Errorf("%s:%d: %w", s.path, lineNo, err)
		}
		// ParseRow already validated the id
		id, _ := row.ID()
		if !fn(&entry{id: id, row: row, line: line}) {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading '%s': %w", s.path, err)
	}
	return nil
}

// Fetch returns the row with a given id or all rows if id is All.
// On error the result is empty and the error is logged.
func (s *Store) Fetch(id int64) ([]Row, error) {
	rows := []Row{}
	if id < 0 && id != All {
		return rows, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	err := s.scan(func(e *entry) bool {
		if id == All {
			rows = append(rows, e.row)
			return true
		}
		if e.id == id {
			log.Verbosef("rowstore: found row %d\n", id)
			rows = append(rows, e.row)
			return false
		}
		return true
	})
	if err != nil {
		log.Errorf("rowstore: Fetch(%d) failed with '%s'\n", id, err)
		return []Row{}, err
	}
	return rows, nil
}

// Insert stores row with a newly generated id and returns the id.
// row[0] is ignored.
func (s *Store) Insert(row Row) (int64, error) {
	if err := ValidateRow(row, s.Fields); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.uniqueID()
	if err != nil {
		log.Errorf("rowstore: Insert() failed with '%s'\n", err)
		return 0, err
	}
	line := FormatRow(withID(row, id))
	if err = appendLine(s.path, line); err != nil {
		log.Errorf("rowstore: Insert() failed with '%s'\n", err)
		return 0, err
	}
	log.Verbosef("rowstore: inserted row %d\n", id)
	log.Event("rowstore.insert", "id", id)
	return id, nil
}

// must be called with s.mu locked for writing
func (s *Store) uniqueID() (int64, error) {
	for range maxIDAttempts {
		id := s.NewID()
		if id < 0 {
			continue
		}
		exists := false
		err := s.scan(func(e *entry) bool {
			exists = e.id == id
			return !exists
		})
		if err != nil {
			return 0, err
		}
		if !exists {
			return id, nil
		}
		log.Logf("rowstore: generated id %d already exists\n", id)
	}
	return 0, ErrIDExhausted
}

// appendLine appends line and a newline to the file and syncs it.
// If the file doesn't end with a newline (e.g. edited by hand), one is
// added first so that we don't glue two rows together.
func appendLine(path string, line string) error {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	st, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}
	if size := st.Size(); size > 0 {
		var last [1]byte
		if _, err = file.ReadAt(last[:], size-1); err != nil {
			file.Close()
			return err
		}
		if last[0] != '\n' {
			line = "\n" + line
		}
	}
	_, err = file.WriteString(line + "\n")
	if err != nil {
		file.Close()
		return err
	}
	err = file.Sync()
	if err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// Update replaces the fields of the row with a given id.
// The id of the row never changes, row[0] is ignored.
// Returns false if there's no row with that id.
func (s *Store) Update(id int64, row Row) (bool, error) {
	if id < 0 {
		return false, fmt.Errorf("%w: %d", ErrInvalidID, id)
	}
	if err := ValidateRow(row, s.Fields); err != nil {
		return false, err
	}
	newLine := FormatRow(withID(row, id))

	s.mu.Lock()
	defer s.mu.Unlock()

	updated := false
	err := s.rewrite(func(e *entry) (string, bool) {
		if e.id == id {
			updated = true
			return newLine, true
		}
		return e.line, true
	})
	if err != nil {
		log.Errorf("rowstore: Update(%d) failed with '%s'\n", id, err)
		return false, err
	}
	if updated {
		log.Verbosef("rowstore: updated row %d\n", id)
		log.Event("rowstore.update", "id", id)
	}
	return updated, nil
}

// Delete removes the row with a given id.
// Returns false if there's no row with that id.
func (s *Store) Delete(id int64) (bool, error) {
	if id < 0 {
		return false, fmt.Errorf("%w: %d", ErrInvalidID, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := false
	err := s.rewrite(func(e *entry) (string, bool) {
		if e.id == id {
			deleted = true
			return "", false
		}
		return e.line, true
	})
	if err != nil {
		log.Errorf("rowstore: Delete(%d) failed with '%s'\n", id, err)
		return false, err
	}
	if deleted {
		log.Verbosef("rowstore: deleted row %d\n", id)
		log.Event("rowstore.delete", "id", id)
	}
	return deleted, nil
}

// rewrite replaces the data file with lines returned by fn for each row,
// in the same order. Rows for which fn returns false are dropped.
// The file is rewritten even if nothing changed.
// Must be called with s.mu locked for writing.
func (s *Store) rewrite(fn func(e *entry) (string, bool)) error {
	if s.path == "" {
		return ErrNotOpen
	}
	w, err := newRewriter(s.path)
	if err != nil {
		return err
	}
	defer w.Abort()

	err = s.scan(func(e *entry) bool {
		line, keep := fn(e)
		if !keep {
			return true
		}
		return w.WriteLine(line) == nil
	})
	if err == nil {
		err = w.err
	}
	if err != nil {
		return err
	}
	return w.Commit()
}

// Snapshot writes the current content of the data file to w.
// Writers are blocked while it runs.
func (s *Store) Snapshot(w io.Writer) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.path == "" {
		return 0, ErrNotOpen
	}
	f, err := os.Open(s.path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	n, err := io.Copy(w, f)
	if err != nil {
		log.Errorf("rowstore: Snapshot() failed with '%s'\n", err)
	}
	return n, err
}

// FilePath returns the absolute path of the data file
func (s *Store) FilePath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.path
}

// Package rowstore provides a record store kept in a single flat text file.
//
// Each line of the file is one row: fields joined with [Separator]. The first
// field of every row is a unique, non-negative int64 identifier generated by
// the store. The remaining fields are opaque to the store.
//
// # File format
//
//	7215434883146436771,Alice,alice@x.com,555
//	1193740017763318044,Bob,bob@x.com,556
//
// There is no header and no escaping. Fields can't contain the separator
// or newlines; [Store.Insert] and [Store.Update] reject such rows with
// [ErrInvalidRow].
//
// # Basic Usage
//
//	s := &rowstore.Store{
//	    Path:   "/tmp/phone-book.csv",
//	    Fields: 4,
//	}
//	err := rowstore.OpenStore(s)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	id, err := s.Insert(rowstore.Row{"_", "Alice", "alice@x.com", "555"})
//	rows, err := s.Fetch(id)
//	rows, err = s.Fetch(rowstore.All)
//	found, err := s.Update(id, rowstore.Row{"_", "Alicia", "alicia@x.com", "555"})
//	found, err = s.Delete(id)
//
// # Thread Safety
//
// The Store is safe for concurrent use. Fetch holds a shared lock, so
// readers run in parallel. Insert, Update and Delete hold an exclusive lock
// for the whole read-modify-write cycle. Update and Delete rewrite the
// entire file through a temporary file that is renamed over the original,
// so a crash never leaves a partially written dataset.
//
// OpenStore also takes an advisory lock on "<Path>.lock" so that two
// processes can't serve the same file.
package rowstore

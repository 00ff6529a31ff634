package rowstore

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/kjk/phonebook/require"
)

func openTestStore(t *testing.T, path string) *Store {
	if path == "" {
		path = filepath.Join(t.TempDir(), "phone-book.csv")
	}
	s := &Store{
		Path:   path,
		Fields: 4,
	}
	err := OpenStore(s)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

// returns ids generated in order, for deterministic tests
func sequenceIDs(ids ...int64) func() int64 {
	var mu sync.Mutex
	i := 0
	return func() int64 {
		mu.Lock()
		defer mu.Unlock()
		id := ids[i%len(ids)]
		i++
		return id
	}
}

func fetchAll(t *testing.T, s *Store) []Row {
	rows, err := s.Fetch(All)
	require.NoError(t, err)
	return rows
}

func rowIDs(t *testing.T, rows []Row) []int64 {
	var res []int64
	for _, r := range rows {
		id, err := r.ID()
		require.NoError(t, err)
		res = append(res, id)
	}
	return res
}

func TestOpenStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.csv")

	err := OpenStore(&Store{Fields: 4})
	require.Error(t, err)
	err = OpenStore(&Store{Path: path})
	require.Error(t, err)

	// parent directory is not created
	err = OpenStore(&Store{Path: filepath.Join(dir, "missing", "data.csv"), Fields: 4})
	require.Error(t, err)

	s := openTestStore(t, path)
	st, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, int64(0), st.Size())
	require.Len(t, fetchAll(t, s), 0)
	require.True(t, filepath.IsAbs(s.FilePath()))
}

func TestOpenStoreExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	content := "1,Alice,alice@x.com,555\n2,Bob,bob@x.com,556\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	s := openTestStore(t, path)
	rows := fetchAll(t, s)
	require.Equal(t, []Row{
		{"1", "Alice", "alice@x.com", "555"},
		{"2", "Bob", "bob@x.com", "556"},
	}, rows)
	// opening doesn't modify the file
	require.FileContent(t, path, content)
}

func TestOpenStoreCorruptFile(t *testing.T) {
	contents := []string{
		"1,Alice,alice@x.com\n",
		"x,Alice,alice@x.com,555\n",
		"1,Alice,alice@x.com,555\n-2,Bob,bob@x.com,556\n",
	}
	for _, content := range contents {
		path := filepath.Join(t.TempDir(), "data.csv")
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		s := &Store{Path: path, Fields: 4}
		err := OpenStore(s)
		require.ErrorIs(t, err, ErrCorruptRow, "content: %q", content)
		// failed open must not leave a usable store
		_, err = s.Fetch(All)
		require.ErrorIs(t, err, ErrNotOpen)
	}
}

func TestExampleScenario(t *testing.T) {
	s := openTestStore(t, "")

	idA, err := s.Insert(Row{"_", "Alice", "alice@x.com", "555"})
	require.NoError(t, err)
	idB, err := s.Insert(Row{"_", "Bob", "bob@x.com", "556"})
	require.NoError(t, err)
	require.NotEqual(t, idA, idB)

	rows := fetchAll(t, s)
	require.Len(t, rows, 2)
	require.Equal(t, []int64{idA, idB}, rowIDs(t, rows))

	ok, err := s.Update(idA, Row{"_", "Alicia", "alicia@x.com", "555"})
	require.NoError(t, err)
	require.True(t, ok)

	rows, err = s.Fetch(idA)
	require.NoError(t, err)
	require.Equal(t, []Row{{strconv.FormatInt(idA, 10), "Alicia", "alicia@x.com", "555"}}, rows)

	ok, err = s.Delete(idB)
	require.NoError(t, err)
	require.True(t, ok)

	rows = fetchAll(t, s)
	require.Equal(t, []int64{idA}, rowIDs(t, rows))

	ok, err = s.Delete(idB)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestInsertRoundTrip(t *testing.T) {
	s := openTestStore(t, "")
	row := Row{"placeholder", "Alice", "alice@x.com", "555"}
	id, err := s.Insert(row)
	require.NoError(t, err)
	require.True(t, id >= 0)
	// caller's row is not modified
	require.Equal(t, "placeholder", row[0])

	rows, err := s.Fetch(id)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, Row{strconv.FormatInt(id, 10), "Alice", "alice@x.com", "555"}, rows[0])

	// unknown and negative ids match nothing
	rows, err = s.Fetch(id + 1)
	require.NoError(t, err)
	require.Len(t, rows, 0)
	rows, err = s.Fetch(-2)
	require.NoError(t, err)
	require.Len(t, rows, 0)
}

func TestInsertInvalidRow(t *testing.T) {
	s := openTestStore(t, "")
	invalid := []Row{
		{"_", "Alice", "alice@x.com"},
		{"_", "Alice, Jr", "alice@x.com", "555"},
		{"_", "Alice", "alice@x.com", "555\n"},
	}
	for _, row := range invalid {
		_, err := s.Insert(row)
		require.ErrorIs(t, err, ErrInvalidRow)
	}
	require.Len(t, fetchAll(t, s), 0)
	require.FileContent(t, s.FilePath(), "")
}

func TestInsertRetriesTakenID(t *testing.T) {
	s := openTestStore(t, "")
	s.NewID = sequenceIDs(5, 5, -1, 7)

	id, err := s.Insert(Row{"_", "Alice", "alice@x.com", "555"})
	require.NoError(t, err)
	require.Equal(t, int64(5), id)
	// 5 is taken and -1 is not a valid id
	id, err = s.Insert(Row{"_", "Bob", "bob@x.com", "556"})
	require.NoError(t, err)
	require.Equal(t, int64(7), id)

	require.FileContent(t, s.FilePath(), "5,Alice,alice@x.com,555\n7,Bob,bob@x.com,556\n")
}

func TestInsertIDExhausted(t *testing.T) {
	s := openTestStore(t, "")
	s.NewID = sequenceIDs(3)

	_, err := s.Insert(Row{"_", "Alice", "alice@x.com", "555"})
	require.NoError(t, err)
	_, err = s.Insert(Row{"_", "Bob", "bob@x.com", "556"})
	require.ErrorIs(t, err, ErrIDExhausted)
	require.Len(t, fetchAll(t, s), 1)
}

func TestUpdatePreservesOtherRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	// rows are kept byte-for-byte, including trailing empty fields
	content := "10,Alice,alice@x.com,555\n20,Bob,,\n30,Carol,carol@x.com,557\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	s := openTestStore(t, path)

	// id in the new row is ignored
	ok, err := s.Update(20, Row{"999", "Robert", "bob@x.com", "556"})
	require.NoError(t, err)
	require.True(t, ok)
	exp := "10,Alice,alice@x.com,555\n20,Robert,bob@x.com,556\n30,Carol,carol@x.com,557\n"
	require.FileContent(t, path, exp)

	rows, err := s.Fetch(999)
	require.NoError(t, err)
	require.Len(t, rows, 0)
}

func TestUpdateNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	content := "10,Alice,alice@x.com,555\n20,Bob,bob@x.com,556\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	s := openTestStore(t, path)

	ok, err := s.Update(30, Row{"_", "Carol", "carol@x.com", "557"})
	require.NoError(t, err)
	require.False(t, ok)
	require.FileContent(t, path, content)

	_, err = s.Update(All, Row{"_", "Carol", "carol@x.com", "557"})
	require.ErrorIs(t, err, ErrInvalidID)
	_, err = s.Update(10, Row{"_", "Carol"})
	require.ErrorIs(t, err, ErrInvalidRow)
	require.FileContent(t, path, content)
}

func TestDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	content := "10,Alice,alice@x.com,555\n20,Bob,bob@x.com,556\n30,Carol,carol@x.com,557\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	s := openTestStore(t, path)

	ok, err := s.Delete(40)
	require.NoError(t, err)
	require.False(t, ok)
	require.FileContent(t, path, content)

	ok, err = s.Delete(20)
	require.NoError(t, err)
	require.True(t, ok)
	require.FileContent(t, path, "10,Alice,alice@x.com,555\n30,Carol,carol@x.com,557\n")
	rows, err := s.Fetch(20)
	require.NoError(t, err)
	require.Len(t, rows, 0)

	_, err = s.Delete(-1)
	require.ErrorIs(t, err, ErrInvalidID)
}

func TestFetchAllCompleteness(t *testing.T) {
	s := openTestStore(t, "")
	var ids []int64
	for i := range 50 {
		id, err := s.Insert(Row{"_", fmt.Sprintf("name%d", i), "e@x.com", strconv.Itoa(i)})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	var exp []int64
	nDeleted := 0
	for i, id := range ids {
		if i%3 == 0 {
			ok, err := s.Delete(id)
			require.NoError(t, err)
			require.True(t, ok)
			nDeleted++
			continue
		}
		exp = append(exp, id)
	}
	rows := fetchAll(t, s)
	require.Len(t, rows, len(ids)-nDeleted)
	require.Equal(t, exp, rowIDs(t, rows))
}

func TestFetchToleratesBlankLinesAndCRLF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte("1,Alice,a,555\r\n\n2,Bob,b,556"), 0644))
	s := openTestStore(t, path)

	rows := fetchAll(t, s)
	require.Equal(t, []int64{1, 2}, rowIDs(t, rows))
	require.Equal(t, "555", rows[0][3])

	ok, err := s.Delete(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.FileContent(t, path, "2,Bob,b,556\n")
}

func TestInsertAfterMissingFinalNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte("1,Alice,a,555"), 0644))
	s := openTestStore(t, path)
	s.NewID = sequenceIDs(2)

	_, err := s.Insert(Row{"_", "Bob", "b", "556"})
	require.NoError(t, err)
	require.FileContent(t, path, "1,Alice,a,555\n2,Bob,b,556\n")
	require.Equal(t, []int64{1, 2}, rowIDs(t, fetchAll(t, s)))
}

func TestFetchCorruptData(t *testing.T) {
	s := openTestStore(t, "")
	_, err := s.Insert(Row{"_", "Alice", "alice@x.com", "555"})
	require.NoError(t, err)

	// someone damaged the file behind our back
	f, err := os.OpenFile(s.FilePath(), os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("oops\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	before := require.ReadFile(t, s.FilePath())

	rows, err := s.Fetch(All)
	require.ErrorIs(t, err, ErrCorruptRow)
	require.NotNil(t, rows)
	require.Len(t, rows, 0)

	_, err = s.Update(1, Row{"_", "Bob", "bob@x.com", "556"})
	require.ErrorIs(t, err, ErrCorruptRow)
	_, err = s.Delete(1)
	require.ErrorIs(t, err, ErrCorruptRow)
	// failed rewrites leave the file alone
	require.FileContent(t, s.FilePath(), before)
	// and no temporary files behind
	matches, err := filepath.Glob(s.FilePath() + ".tmp-*")
	require.NoError(t, err)
	require.Len(t, matches, 0)
}

func TestRewriteKeepsFileMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte("1,Alice,a,555\n"), 0640))
	s := openTestStore(t, path)
	_, err := s.Update(1, Row{"_", "Alicia", "a", "555"})
	require.NoError(t, err)
	st, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0640), st.Mode().Perm())
}

func TestClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	s := &Store{Path: path, Fields: 4}
	require.NoError(t, OpenStore(s))
	require.NoError(t, s.Close())

	_, err := s.Fetch(All)
	require.ErrorIs(t, err, ErrNotOpen)
	_, err = s.Insert(Row{"_", "Alice", "alice@x.com", "555"})
	require.ErrorIs(t, err, ErrNotOpen)
	_, err = s.Delete(1)
	require.ErrorIs(t, err, ErrNotOpen)
	_, err = s.Snapshot(&bytes.Buffer{})
	require.ErrorIs(t, err, ErrNotOpen)

	// can be opened again after Close
	s2 := openTestStore(t, path)
	require.Len(t, fetchAll(t, s2), 0)
}

func TestSnapshot(t *testing.T) {
	s := openTestStore(t, "")
	for i := range 3 {
		_, err := s.Insert(Row{"_", fmt.Sprintf("name%d", i), "e@x.com", "1"})
		require.NoError(t, err)
	}
	var buf bytes.Buffer
	n, err := s.Snapshot(&buf)
	require.NoError(t, err)
	require.Equal(t, int64(buf.Len()), n)
	require.EqualText(t, require.ReadFile(t, s.FilePath()), buf.String())
}

func TestConcurrentReadsDontBlock(t *testing.T) {
	s := openTestStore(t, "")
	_, err := s.Insert(Row{"_", "Alice", "alice@x.com", "555"})
	require.NoError(t, err)

	// a reader holding the lock must not prevent other readers
	s.mu.RLock()
	done := make(chan error, 10)
	for range 10 {
		go func() {
			_, err := s.Fetch(All)
			done <- err
		}()
	}
	for range 10 {
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			s.mu.RUnlock()
			t.Fatalf("Fetch() blocked behind another reader")
		}
	}
	s.mu.RUnlock()
}

func TestWriterExcludesReaders(t *testing.T) {
	s := openTestStore(t, "")

	s.mu.Lock()
	done := make(chan struct{})
	go func() {
		_, _ = s.Fetch(All)
		close(done)
	}()
	select {
	case <-done:
		s.mu.Unlock()
		t.Fatalf("Fetch() didn't wait for the writer")
	case <-time.After(50 * time.Millisecond):
	}
	s.mu.Unlock()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Fetch() didn't finish after the writer released the lock")
	}
}

func TestConcurrentWriters(t *testing.T) {
	s := openTestStore(t, "")
	const nWorkers = 8
	const nPerWorker = 20

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := map[int64]bool{}
	for w := range nWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range nPerWorker {
				row := Row{"_", fmt.Sprintf("w%d-%d", w, i), "e@x.com", "1"}
				id, err := s.Insert(row)
				if err != nil {
					t.Errorf("Insert() failed: %s", err)
					return
				}
				// every other row gets updated and every fourth deleted,
				// interleaved with inserts and reads of other workers
				if i%2 == 0 {
					row[1] = row[1] + "-upd"
					ok, err := s.Update(id, row)
					if err != nil || !ok {
						t.Errorf("Update(%d) failed: %v, %v", id, ok, err)
					}
				}
				if i%4 == 0 {
					ok, err := s.Delete(id)
					if err != nil || !ok {
						t.Errorf("Delete(%d) failed: %v, %v", id, ok, err)
					}
					continue
				}
				if _, err := s.Fetch(All); err != nil {
					t.Errorf("Fetch() failed: %s", err)
				}
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	rows := fetchAll(t, s)
	require.Len(t, rows, len(seen))
	for _, id := range rowIDs(t, rows) {
		require.True(t, seen[id], "unexpected id %d", id)
		delete(seen, id)
	}
	require.Len(t, seen, 0)
}

package rowstore

import (
	"bufio"
	"os"
	"path/filepath"

	"github.com/kjk/phonebook/log"
)

// Some references:
// - https://www.slideshare.net/nan1nan1/eat-my-data
// - https://lwn.net/Articles/457667/

// rewriter replaces the data file atomically: lines go to a temporary
// file in the same directory which is renamed over the data file
// only if everything was written and synced
type rewriter struct {
	dstPath string
	dir     string
	tmpFile *os.File
	w       *bufio.Writer
	err     error

	tmpPath string
}

func newRewriter(path string) (*rewriter, error) {
	dir, fName := filepath.Split(path)
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if fName == "" {
		return nil, &os.PathError{Op: "open", Path: path, Err: os.ErrInvalid}
	}

	tmpFile, err := os.CreateTemp(dir, fName+".tmp-*")
	if err != nil {
		return nil, err
	}
	// os.CreateTemp uses 0600, keep the mode of the data file
	if st, err := os.Stat(path); err == nil {
		err = tmpFile.Chmod(st.Mode().Perm())
		log.IfErrf(err, "rowstore: failed to set mode of '%s': %s\n", tmpFile.Name(), err)
	}

	return &rewriter{
		dstPath: path,
		dir:     dir,
		tmpFile: tmpFile,
		w:       bufio.NewWriter(tmpFile),
		tmpPath: tmpFile.Name(),
	}, nil
}

// WriteLine writes s followed by a newline
func (r *rewriter) WriteLine(s string) error {
	if r.err != nil {
		return r.err
	}
	_, err := r.w.WriteString(s)
	if err == nil {
		err = r.w.WriteByte('\n')
	}
	if err != nil {
		r.err = err
		r.Abort()
	}
	return err
}

func (r *rewriter) closed() bool {
	return r.tmpFile == nil
}

// Abort removes the temporary file. The data file is not touched.
// Abort after Commit is a no-op so it can be used with defer.
func (r *rewriter) Abort() {
	if r.closed() {
		return
	}
	_ = r.tmpFile.Close()
	_ = os.Remove(r.tmpPath)
	r.tmpFile = nil
}

// Commit flushes, syncs and renames the temporary file over the data file
func (r *rewriter) Commit() error {
	if r.closed() {
		return r.err
	}
	tmpFile := r.tmpFile
	r.tmpFile = nil

	didRename := false
	defer func() {
		if !didRename {
			_ = os.Remove(r.tmpPath)
		}
	}()

	// https://www.joeshaw.org/dont-defer-close-on-writable-files/
	err := r.w.Flush()
	if err == nil {
		err = tmpFile.Sync()
	}
	errClose := tmpFile.Close()
	if err == nil {
		err = errClose
	}
	if err != nil {
		r.err = err
		return err
	}

	err = os.Rename(r.tmpPath, r.dstPath)
	didRename = err == nil
	if err != nil {
		r.err = err
		return err
	}
	// make the rename durable. errors are ignored, it's a nice to have
	if fdir, _ := os.Open(r.dir); fdir != nil {
		_ = fdir.Sync()
		_ = fdir.Close()
	}
	return nil
}

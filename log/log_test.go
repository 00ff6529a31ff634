package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kjk/phonebook/require"
)

func TestWriteDailyNil(t *testing.T) {
	var w *WriteDaily
	require.NoError(t, w.Write([]byte("hello")))
	require.NoError(t, w.WriteString("hello"))
	require.NoError(t, w.Sync())
	require.NoError(t, w.Close())
}

func TestWriteDaily(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	w := NewWriteDaily(dir)
	require.NoError(t, w.WriteString("line 1\n"))
	require.NoError(t, w.WriteString("line 2\n"))
	require.NoError(t, w.Sync())
	require.NoError(t, w.Close())
	// can write after Close, re-opens the file
	require.NoError(t, w.WriteString("line 3\n"))
	require.NoError(t, w.Close())

	name := time.Now().UTC().Format("2006-01-02") + ".txt"
	require.FileContent(t, filepath.Join(dir, name), "line 1\nline 2\nline 3\n")
}

func TestDayFromTime(t *testing.T) {
	tm := time.Date(2024, 3, 7, 23, 59, 0, 0, time.UTC)
	require.Equal(t, 20240307, dayFromTime(tm))
}

func TestFormatEvent(t *testing.T) {
	tm := time.Date(2024, 3, 7, 10, 0, 0, 0, time.UTC)
	d := FormatEvent("rowstore.insert", tm)
	require.Equal(t, "--- rowstore.insert 2024-03-07T10:00:00Z 0\n", string(d))

	d = FormatEvent("rowstore.insert", tm, "id", 42)
	s := string(d)
	hdr, body, ok := strings.Cut(s, "\n")
	require.True(t, ok)
	require.True(t, strings.HasPrefix(hdr, "--- rowstore.insert 2024-03-07T10:00:00Z "), "hdr: %s", hdr)
	require.True(t, strings.Contains(body, "id"), "body: %s", body)
	require.True(t, strings.Contains(body, "42"), "body: %s", body)
	require.True(t, strings.HasSuffix(s, "\n"))
}

func TestFormatEventPanics(t *testing.T) {
	tm := time.Now()
	didPanic := func(fn func()) (res bool) {
		defer func() {
			res = recover() != nil
		}()
		fn()
		return false
	}
	// odd number of values
	require.True(t, didPanic(func() { FormatEvent("ev", tm, "id") }))
	// key must be a simple type
	require.True(t, didPanic(func() { FormatEvent("ev", tm, []string{"a"}, 1) }))
}

func TestBestRemoteAddress(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/phone-book", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	require.Equal(t, "10.0.0.1:1234", BestRemoteAddress(r))
	r.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.2")
	require.Equal(t, "1.2.3.4", BestRemoteAddress(r))
	r.Header.Set("CF-Connecting-IP", "5.6.7.8")
	require.Equal(t, "5.6.7.8", BestRemoteAddress(r))
}

func TestFormatHTTPRequest(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/phone-book?pretty=1", nil)
	r.Header.Set("User-Agent", "test-agent")
	d, err := FormatHTTPRequest(r, 201, 12, 1500*time.Microsecond)
	require.NoError(t, err)
	require.True(t, bytes.HasSuffix(d, []byte("\n")))

	var m map[string]any
	require.NoError(t, json.Unmarshal(d, &m))
	require.Equal(t, "POST", m["method"])
	require.Equal(t, "/api/phone-book", m["url"])
	require.Equal(t, "pretty=1", m["query"])
	require.Equal(t, float64(201), m["code"])
	require.Equal(t, float64(12), m["size"])
	require.Equal(t, 1.5, m["dur"])
	require.Equal(t, "test-agent", m["ua"])
	_, hasReferer := m["referer"]
	require.False(t, hasReferer)
}

func TestInitAndClose(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	Init(&Config{
		Dir:     dir,
		Console: &buf,
		Verbose: true,
	})
	defer func() {
		Close()
		SetVerbose(false)
		console = NewConsole(os.Stdout)
	}()

	require.True(t, IsVerbose())
	Logf("hello %s\n", "world")
	Verbosef("verbose %d\n", 5)
	Errorf("bad thing: %s\n", "oops")
	require.False(t, IfErrf(nil))
	require.True(t, IfErrf(errors.New("failed"), "wrapped: %s", "failed"))
	Event("test.event", "id", 1)
	r := httptest.NewRequest("GET", "/api/phone-book", nil)
	require.NoError(t, HTTPRequest(r, 200, 5, time.Millisecond))
	Close()

	out := buf.String()
	require.True(t, strings.Contains(out, "hello world"), "out: %s", out)
	require.True(t, strings.Contains(out, "verbose 5"), "out: %s", out)
	require.True(t, strings.Contains(out, "bad thing: oops"), "out: %s", out)

	name := time.Now().UTC().Format("2006-01-02") + ".txt"
	logs := require.ReadFile(t, filepath.Join(dir, "log", name))
	require.True(t, strings.Contains(logs, "hello world\n"))
	require.True(t, strings.Contains(logs, "verbose 5\n"))

	errs := require.ReadFile(t, filepath.Join(dir, "errors", name))
	require.True(t, strings.Contains(errs, "bad thing: oops\n"))
	require.True(t, strings.Contains(errs, "wrapped: failed\n"))
	// callstack points at this file
	require.True(t, strings.Contains(errs, "log_test.go:"), "errs: %s", errs)

	events := require.ReadFile(t, filepath.Join(dir, "events", name))
	require.True(t, strings.HasPrefix(events, "--- test.event "))

	httpLogs := require.ReadFile(t, filepath.Join(dir, "http", name))
	require.True(t, strings.Contains(httpLogs, `"url":"/api/phone-book"`))

	// after Close logging to files is a no-op
	Logf("after close\n")
	require.Nil(t, log)
}

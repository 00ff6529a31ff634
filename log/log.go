package log

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/toon-format/toon-go"
)

var (
	log       *WriteDaily
	httpLog   *WriteDaily
	errorsLog *WriteDaily
	eventsLog *WriteDaily

	console = NewConsole(os.Stdout)

	// if true, Verbosef() will log messages
	// atomic because config reload can flip it while we serve requests
	verbose atomic.Bool
)

func SetVerbose(v bool) {
	verbose.Store(v)
}

func IsVerbose() bool {
	return verbose.Load()
}

type WriteDaily struct {
	Dir         string
	currentDate int // YYYYMMDD format
	file        *os.File
	mu          sync.Mutex
}

func NewWriteDaily(dir string) *WriteDaily {
	return &WriteDaily{
		Dir: dir,
	}
}

// WriteString writes a string to the daily log file
// it's safe to call on nil receiver
func (w *WriteDaily) WriteString(s string) error {
	return w.Write([]byte(s))
}

// dayFromTime converts a time.Time to YYYYMMDD integer format
func dayFromTime(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

// Write writes data to today's log file, opening a new file if the day changed
// it's safe to call on nil receiver
func (w *WriteDaily) Write(d []byte) error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now().UTC()
	today := dayFromTime(now)
	if w.file != nil && w.currentDate != today {
		if err := w.close(); err != nil {
			return err
		}
	}
	if w.file == nil {
		name := now.Format("2006-01-02") + ".txt"
		if err := os.MkdirAll(w.Dir, 0755); err != nil {
			return err
		}
		f, err := os.OpenFile(filepath.Join(w.Dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		w.file = f
		w.currentDate = today
	}
	_, err := w.file.Write(d)
	return err
}

func (w *WriteDaily) close() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	w.currentDate = 0
	return err
}

// Close closes the daily log file
// it's safe to call on nil receiver
func (w *WriteDaily) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.close()
}

// Sync flushes the daily log file to disk
// it's safe to call on nil receiver
func (w *WriteDaily) Sync() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file != nil {
		return w.file.Sync()
	}
	return nil
}

type Config struct {
	// directory where log files are stored
	// each log type (regular, error, event, http) has its own subdirectory
	// if empty, we only log to console
	Dir string
	// where console logs go, os.Stdout if nil
	Console io.Writer
	Verbose bool
}

// NewConsole returns a slog.Logger that writes human-readable lines to w.
// Colors are only used if w is a terminal.
func NewConsole(w io.Writer) *slog.Logger {
	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd())
		w = colorable.NewColorable(f)
	}
	// systemd adds its own timestamps
	underSystemd := os.Getenv("JOURNAL_STREAM") != ""
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: "15:04:05.000",
		NoColor:    noColor,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if underSystemd && a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	}))
}

// Init initializes the logging system
func Init(config *Config) {
	if config.Console != nil {
		console = NewConsole(config.Console)
	}
	SetVerbose(config.Verbose)
	dir := config.Dir
	if dir == "" {
		return
	}
	log = NewWriteDaily(filepath.Join(dir, "log"))
	errorsLog = NewWriteDaily(filepath.Join(dir, "errors"))
	// files are created on first write so if the app doesn't
	// log http requests or events, it's a no-op
	httpLog = NewWriteDaily(filepath.Join(dir, "http"))
	eventsLog = NewWriteDaily(filepath.Join(dir, "events"))
}

// CloseWriteDaily closes the WriteDaily and sets its pointer to nil
// it's safe to call with nil pointer
func CloseWriteDaily(wd **WriteDaily) {
	if *wd == nil {
		return
	}
	(*wd).Sync()
	(*wd).Close()
	*wd = nil
}

func Close() {
	CloseWriteDaily(&log)
	CloseWriteDaily(&httpLog)
	CloseWriteDaily(&errorsLog)
	CloseWriteDaily(&eventsLog)
}

func Logf(s string, args ...any) {
	if len(args) > 0 {
		s = fmt.Sprintf(s, args...)
	}
	console.Info(strings.TrimRight(s, "\n"))
	log.WriteString(s)
}

func GetCallstackFrames(skip int) []string {
	var callers [32]uintptr
	n := runtime.Callers(skip+1, callers[:])
	frames := runtime.CallersFrames(callers[:n])
	var cs []string
	for {
		frame, more := frames.Next()
		if !more {
			break
		}
		s := frame.File + ":" + strconv.Itoa(frame.Line)
		cs = append(cs, s)
	}
	return cs
}

func GetCallstack(skip int) string {
	frames := GetCallstackFrames(skip + 1)
	return strings.Join(frames, "\n")
}

func Verbosef(format string, args ...any) {
	if !verbose.Load() {
		return
	}
	if len(args) > 0 {
		format = fmt.Sprintf(format, args...)
	}
	console.Debug(strings.TrimRight(format, "\n"))
	log.WriteString(format)
}

// Errorf logs an error message along with the callstack
func Errorf(s string, args ...any) {
	if len(args) > 0 {
		s = fmt.Sprintf(s, args...)
	}
	s = strings.TrimRight(s, "\n")
	cs := GetCallstack(1)
	console.Error(s)
	line := s + "\n" + cs + "\n"
	log.WriteString(line)
	errorsLog.WriteString(line)
}

// if err != nil, log and return true
// IfErrf(err) => logs err.Error()
// IfErrf(err, "error is: %v", err) => logs message formatted
func IfErrf(err error, a ...any) bool {
	if err == nil {
		return false
	}
	if len(a) == 0 {
		Errorf("%s", err.Error())
		return true
	}
	s, ok := a[0].(string)
	if !ok {
		// shouldn't happen but just in case
		s = fmt.Sprintf("%s", a[0])
	}
	if len(a) > 1 {
		s = fmt.Sprintf(s, a[1:]...)
	}
	Errorf("%s", s)
	return true
}

func panicIf(cond bool) {
	if cond {
		panic("condition is true")
	}
}

// simpleTypeToStr converts simple types to string
// panics if v is of complex type
func simpleTypeToStr(v any) string {
	rt := reflect.TypeOf(v)
	kind := rt.Kind()
	switch kind {
	case reflect.Array, reflect.Slice, reflect.Struct, reflect.Map, reflect.Chan, reflect.Interface, reflect.Pointer:
		panic(fmt.Sprintf("toStr: value is of kind %v", kind))
	case reflect.String:
		return v.(string)
	}
	return fmt.Sprintf("%v", v)
}

// FormatEvent encodes an event as a header line followed by vals in toon format
// vals is: key1, val1, key2, val2...
func FormatEvent(name string, t time.Time, vals ...any) []byte {
	n := len(vals)
	panicIf(n%2 != 0)
	var d []byte
	if n > 0 {
		m := map[string]any{}
		for i := 0; i < n; i += 2 {
			k := simpleTypeToStr(vals[i])
			m[k] = vals[i+1]
		}
		d, _ = toon.Marshal(m)
	}
	hdr := fmt.Sprintf("--- %s %s %d\n", name, t.Format(time.RFC3339Nano), len(d))
	res := append([]byte(hdr), d...)
	if len(d) > 0 && d[len(d)-1] != '\n' {
		res = append(res, '\n')
	}
	return res
}

// Event logs a named event with key/value pairs to the events log
func Event(name string, vals ...any) {
	d := FormatEvent(name, time.Now().UTC(), vals...)
	eventsLog.Write(d)
}

func EventWithDuration(name string, dur time.Duration, vals ...any) {
	vals = append(vals, "durmicro", dur.Microseconds())
	Event(name, vals...)
}

// BestRemoteAddress picks the most accurate IP address from client request
// needed because of proxies
func BestRemoteAddress(r *http.Request) string {
	h := r.Header
	potentials := []string{h.Get("CF-Connecting-IP"), h.Get("X-Real-Ip"), h.Get("X-Forwarded-For"), r.RemoteAddr}
	for _, v := range potentials {
		// sometimes they are stored as "ip1, ip2, ip3" with ip1 being the best
		parts := strings.Split(v, ",")
		res := strings.TrimSpace(parts[0])
		if res != "" {
			return res
		}
	}
	return ""
}

// FormatHTTPRequest encodes a request summary as a single JSON line
func FormatHTTPRequest(r *http.Request, code int, nWritten int64, dur time.Duration) ([]byte, error) {
	rawQuery := r.URL.RawQuery
	if len(rawQuery) > 128 {
		rawQuery = rawQuery[:128]
	}

	entry := map[string]any{
		"ts":     time.Now().UTC().Unix(),
		"method": r.Method,
		"url":    r.URL.Path,
		"query":  rawQuery,
		"host":   r.Host,
		"ip":     BestRemoteAddress(r),
		"code":   code,
		"size":   nWritten,
		"dur":    float64(dur.Microseconds()) / 1000.0, // milliseconds with decimal precision
	}
	if referer := r.Header.Get("Referer"); referer != "" {
		entry["referer"] = referer
	}
	if ua := r.Header.Get("User-Agent"); ua != "" {
		entry["ua"] = ua
	}
	if contentType := r.Header.Get("Content-Type"); contentType != "" {
		entry["content_type"] = contentType
	}

	buf := &strings.Builder{}
	encoder := json.NewEncoder(buf)
	// avoid unnecessary escaping
	encoder.SetEscapeHTML(false)
	// Encode adds a newline
	if err := encoder.Encode(entry); err != nil {
		return nil, err
	}
	return []byte(buf.String()), nil
}

// HTTPRequest logs a handled request to the http log
func HTTPRequest(r *http.Request, code int, nWritten int64, dur time.Duration) error {
	if httpLog == nil {
		return nil
	}
	d, err := FormatHTTPRequest(r, code, nWritten, dur)
	if err != nil {
		return err
	}
	return httpLog.Write(d)
}

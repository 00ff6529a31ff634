package require

import (
	"errors"
	"os"
	"reflect"

	"github.com/alecthomas/assert"
	"github.com/davecgh/go-spew/spew"
	"github.com/pmezard/go-difflib/difflib"
)

// this is a subset of github.com/stretchr/testify/require on top of
// github.com/alecthomas/assert, plus helpers for comparing data files.
// assert.* functions stop the test on failure.

// TestingT is an interface wrapper around *testing.T
type TestingT interface {
	Errorf(format string, args ...interface{})
	FailNow()
}

// Len asserts that the specified object has specific length.
//
//	require.Len(t, rows, 3)
func Len(t TestingT, object interface{}, length int, msgAndArgs ...interface{}) {
	if n, ok := lenOf(object); ok && n != length {
		t.Errorf("value:\n%s", Dump(object))
	}
	assert.Len(t, object, length, msgAndArgs...)
}

func lenOf(object interface{}) (int, bool) {
	v := reflect.ValueOf(object)
	switch v.Kind() {
	case reflect.Array, reflect.Chan, reflect.Map, reflect.Slice, reflect.String:
		return v.Len(), true
	}
	return 0, false
}

// Nil asserts that the specified object is nil.
func Nil(t TestingT, object interface{}, msgAndArgs ...interface{}) {
	assert.Nil(t, object, msgAndArgs...)
}

// NoError asserts that a function returned no error (i.e. `nil`).
//
//	id, err := s.Insert(row)
//	require.NoError(t, err)
func NoError(t TestingT, err error, msgAndArgs ...interface{}) {
	assert.NoError(t, err, msgAndArgs...)
}

// Error asserts that a function returned an error
func Error(t TestingT, err error, msgAndArgs ...interface{}) {
	assert.Error(t, err, msgAndArgs...)
}

// ErrorIs asserts that errors.Is(err, target) is true
func ErrorIs(t TestingT, err error, target error, msgAndArgs ...interface{}) {
	if errors.Is(err, target) {
		return
	}
	t.Errorf("expected error '%v', got '%v'", target, err)
	if len(msgAndArgs) > 0 {
		assert.Fail(t, "ErrorIs", msgAndArgs...)
	}
	t.FailNow()
}

// NotEmpty asserts that the specified object is NOT empty.
func NotEmpty(t TestingT, object interface{}, msgAndArgs ...interface{}) {
	assert.NotEmpty(t, object, msgAndArgs...)
}

// Equal asserts that two objects are equal.
//
//	require.Equal(t, 123, 123)
func Equal(t TestingT, expected interface{}, actual interface{}, msgAndArgs ...interface{}) {
	assert.Equal(t, expected, actual, msgAndArgs...)
}

// NotEqual asserts that the specified values are NOT equal.
func NotEqual(t TestingT, expected interface{}, actual interface{}, msgAndArgs ...interface{}) {
	assert.NotEqual(t, expected, actual, msgAndArgs...)
}

// NotNil asserts that the specified object is not nil.
func NotNil(t TestingT, object interface{}, msgAndArgs ...interface{}) {
	assert.NotNil(t, object, msgAndArgs...)
}

// True asserts that the specified value is true.
func True(t TestingT, value bool, msgAndArgs ...interface{}) {
	assert.True(t, value, msgAndArgs...)
}

// False asserts that the specified value is false.
func False(t TestingT, value bool, msgAndArgs ...interface{}) {
	assert.False(t, value, msgAndArgs...)
}

// Dump returns a detailed, multi-line representation of values
func Dump(a ...interface{}) string {
	cfg := spew.ConfigState{
		Indent:                  "  ",
		DisableMethods:          true,
		DisablePointerAddresses: true,
		SortKeys:                true,
	}
	return cfg.Sdump(a...)
}

// Diff returns unified diff between two texts, empty if they are the same
func Diff(expected, actual string) string {
	if expected == actual {
		return ""
	}
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(expected),
		B:        difflib.SplitLines(actual),
		FromFile: "expected",
		ToFile:   "actual",
		Context:  2,
	}
	s, _ := difflib.GetUnifiedDiffString(diff)
	return s
}

// EqualText asserts that two texts are equal and shows a diff if not
func EqualText(t TestingT, expected, actual string, msgAndArgs ...interface{}) {
	diff := Diff(expected, actual)
	if diff == "" {
		return
	}
	t.Errorf("texts are different:\n%s", diff)
	if len(msgAndArgs) > 0 {
		assert.Fail(t, "EqualText", msgAndArgs...)
	}
	t.FailNow()
}

// FileContent asserts that a file at path has expected content
func FileContent(t TestingT, path string, expected string, msgAndArgs ...interface{}) {
	d, err := os.ReadFile(path)
	NoError(t, err, msgAndArgs...)
	EqualText(t, expected, string(d), msgAndArgs...)
}

// ReadFile returns content of the file at path
func ReadFile(t TestingT, path string) string {
	d, err := os.ReadFile(path)
	NoError(t, err)
	return string(d)
}

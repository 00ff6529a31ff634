// Package api implements the REST interface to a phone book:
//
//	GET    /api/phone-book        all records
//	GET    /api/phone-book/{id}   one record or 404
//	POST   /api/phone-book        create a record, returns its id
//	PUT    /api/phone-book        update a record (id in the body)
//	DELETE /api/phone-book/{id}   delete a record
//	GET    /ping                  health check
//
// Add ?pretty=1 to get indented JSON.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/kjk/phonebook/httputil"
	"github.com/kjk/phonebook/log"
	"github.com/kjk/phonebook/phonebook"
	"github.com/kjk/phonebook/rowstore"
)

const (
	// URL prefix of phone book resources
	PathPrefix = "/api/phone-book"

	// we don't expect records to be bigger
	maxBodySize = 64 * 1024
)

type Options struct {
	// mutating requests per second allowed, 0 means no limit
	RateLimit float64
	// how many mutating requests can be made in a burst
	RateBurst int
}

type server struct {
	svc *phonebook.Service
}

// NewHandler returns http.Handler serving the phone book API,
// with logging, rate limiting and compression middleware applied
func NewHandler(svc *phonebook.Service, opts *Options) http.Handler {
	if opts == nil {
		opts = &Options{}
	}
	s := &server{svc: svc}
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+PathPrefix, s.handleList)
	mux.HandleFunc("GET "+PathPrefix+"/{id}", s.handleGet)
	mux.HandleFunc("POST "+PathPrefix, s.handleCreate)
	mux.HandleFunc("PUT "+PathPrefix, s.handleUpdate)
	mux.HandleFunc("DELETE "+PathPrefix+"/{id}", s.handleDelete)
	mux.HandleFunc("GET /ping", handlePing)

	var h http.Handler = mux
	if opts.RateLimit > 0 {
		h = withRateLimit(h, newWriteLimiter(opts.RateLimit, opts.RateBurst))
	}
	h = withLogging(h)
	return withGzip(h)
}

func handlePing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "pong")
}

func parseID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}

func isBadRequest(err error) bool {
	return errors.Is(err, phonebook.ErrInvalidRecord) ||
		errors.Is(err, rowstore.ErrInvalidRow) ||
		errors.Is(err, rowstore.ErrInvalidID)
}

func serveErr(w http.ResponseWriter, r *http.Request, err error) {
	if isBadRequest(err) {
		httputil.ServeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	// the store already logged the details
	httputil.ServeError(w, r, http.StatusInternalServerError, "")
}

func readRecord(w http.ResponseWriter, r *http.Request) (*phonebook.Record, bool) {
	var rec phonebook.Record
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rec); err != nil {
		log.Verbosef("api: invalid body in %s %s: %s\n", r.Method, r.URL.Path, err)
		httputil.ServeError(w, r, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return nil, false
	}
	return &rec, true
}

func (s *server) handleList(w http.ResponseWriter, r *http.Request) {
	recs, err := s.svc.GetAll()
	if err != nil {
		serveErr(w, r, err)
		return
	}
	httputil.ServeJSON(w, r, http.StatusOK, recs)
}

func (s *server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		httputil.ServeError(w, r, http.StatusBadRequest, "invalid id")
		return
	}
	rec, err := s.svc.Get(id)
	if err != nil {
		serveErr(w, r, err)
		return
	}
	if rec == nil {
		httputil.ServeError(w, r, http.StatusNotFound, "")
		return
	}
	httputil.ServeJSON(w, r, http.StatusOK, rec)
}

func (s *server) handleCreate(w http.ResponseWriter, r *http.Request) {
	rec, ok := readRecord(w, r)
	if !ok {
		return
	}
	id, err := s.svc.Add(rec)
	if err != nil {
		serveErr(w, r, err)
		return
	}
	w.Header().Set("Location", "api/phone-book/"+strconv.FormatInt(id, 10))
	httputil.ServeJSON(w, r, http.StatusCreated, id)
}

func (s *server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	rec, ok := readRecord(w, r)
	if !ok {
		return
	}
	found, err := s.svc.Update(rec)
	if err != nil {
		serveErr(w, r, err)
		return
	}
	if !found {
		httputil.ServeError(w, r, http.StatusNotFound, "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		httputil.ServeError(w, r, http.StatusBadRequest, "invalid id")
		return
	}
	found, err := s.svc.Delete(id)
	if err != nil {
		serveErr(w, r, err)
		return
	}
	if !found {
		httputil.ServeError(w, r, http.StatusNotFound, "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

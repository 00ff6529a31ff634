// Package client talks to a phone book server over HTTP
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/carlmjohnson/requests"

	"github.com/kjk/phonebook/httputil"
	"github.com/kjk/phonebook/phonebook"
)

// ErrNotFound is returned when a record with a given id doesn't exist
var ErrNotFound = errors.New("record not found")

const phoneBookPath = "/api/phone-book"

type Client struct {
	// e.g. http://localhost:8080
	BaseURL string
	// if nil, uses a client with default timeouts
	HTTPClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: httputil.NewDefaultTimeoutClient(),
	}
}

func (c *Client) request(path string) *requests.Builder {
	rb := requests.URL(httputil.JoinURL(c.BaseURL, path))
	if c.HTTPClient != nil {
		rb = rb.Client(c.HTTPClient)
	}
	return rb
}

func recordPath(id int64) string {
	return phoneBookPath + "/" + strconv.FormatInt(id, 10)
}

func notFoundOr(err error, what string) error {
	if requests.HasStatusErr(err, http.StatusNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%s failed: %w", what, err)
	}
	return nil
}

// List returns all records
func (c *Client) List(ctx context.Context) ([]*phonebook.Record, error) {
	var res []*phonebook.Record
	err := c.request(phoneBookPath).
		ToJSON(&res).
		Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("List() failed: %w", err)
	}
	return res, nil
}

// Get returns a record with a given id or ErrNotFound
func (c *Client) Get(ctx context.Context, id int64) (*phonebook.Record, error) {
	var rec phonebook.Record
	err := c.request(recordPath(id)).
		ToJSON(&rec).
		Fetch(ctx)
	if err = notFoundOr(err, "Get()"); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Create adds a new record and returns its id. rec.ID is ignored.
func (c *Client) Create(ctx context.Context, rec *phonebook.Record) (int64, error) {
	var id int64
	err := c.request(phoneBookPath).
		BodyJSON(rec).
		CheckStatus(http.StatusCreated).
		ToJSON(&id).
		Fetch(ctx)
	if err != nil {
		return 0, fmt.Errorf("Create() failed: %w", err)
	}
	return id, nil
}

// Update replaces the record with rec.ID or returns ErrNotFound
func (c *Client) Update(ctx context.Context, rec *phonebook.Record) error {
	err := c.request(phoneBookPath).
		Put().
		BodyJSON(rec).
		CheckStatus(http.StatusNoContent).
		Fetch(ctx)
	return notFoundOr(err, "Update()")
}

// Delete removes the record with a given id or returns ErrNotFound
func (c *Client) Delete(ctx context.Context, id int64) error {
	err := c.request(recordPath(id)).
		Delete().
		CheckStatus(http.StatusNoContent).
		Fetch(ctx)
	return notFoundOr(err, "Delete()")
}

// Ping checks that the server is up
func (c *Client) Ping(ctx context.Context) error {
	var s string
	err := c.request("/ping").
		ToString(&s).
		Fetch(ctx)
	if err != nil {
		return fmt.Errorf("Ping() failed: %w", err)
	}
	if s != "pong" {
		return fmt.Errorf("Ping() failed: unexpected response '%s'", s)
	}
	return nil
}

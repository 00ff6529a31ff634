package httputil

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// how long we wait for in-flight requests to finish on shutdown
const shutdownTimeout = time.Second * 5

// NewServer returns http.Server with sensible timeouts
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		ReadTimeout:  120 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second, // introduced in Go 1.8
		Handler:      handler,
	}
}

// ListenAndServe runs srv until ctx is cancelled and then shuts it down,
// giving in-flight requests a few seconds to finish.
// ready, if not nil, is called with the address we're listening on.
func ListenAndServe(ctx context.Context, srv *http.Server, ready func(addr string)) error {
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}
	if ready != nil {
		ready(ln.Addr().String())
	}

	chServerClosed := make(chan error, 1)
	go func() {
		err := srv.Serve(ln)
		// mute error caused by Shutdown()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		chServerClosed <- err
	}()

	select {
	case err = <-chServerClosed:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	if errors.Is(err, context.DeadlineExceeded) {
		// timeout
		err = srv.Close()
	}
	if err2 := <-chServerClosed; err == nil {
		err = err2
	}
	return err
}

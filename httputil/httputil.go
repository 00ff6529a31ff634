package httputil

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/pretty"
)

// can be used for http.Get() requests with better timeouts. New one must be created
// for each Get() request
func NewTimeoutClient(connectTimeout time.Duration, readWriteTimeout time.Duration) *http.Client {
	timeoutDialer := func(cTimeout time.Duration, rwTimeout time.Duration) func(net, addr string) (c net.Conn, err error) {
		return func(netw, addr string) (net.Conn, error) {
			conn, err := net.DialTimeout(netw, addr, cTimeout)
			if err != nil {
				return nil, err
			}
			conn.SetDeadline(time.Now().Add(rwTimeout))
			return conn, nil
		}
	}

	return &http.Client{
		Transport: &http.Transport{
			Dial:  timeoutDialer(connectTimeout, readWriteTimeout),
			Proxy: http.ProxyFromEnvironment,
		},
	}
}

func NewDefaultTimeoutClient() *http.Client {
	return NewTimeoutClient(time.Second*120, time.Second*120)
}

func JoinURL(s1, s2 string) string {
	if strings.HasSuffix(s1, "/") {
		if strings.HasPrefix(s2, "/") {
			return s1 + s2[1:]
		}
		return s1 + s2
	}

	if strings.HasPrefix(s2, "/") {
		return s1 + s2
	}
	return s1 + "/" + s2
}

// GetRequestIPAddress returns IP address of the request even for proxied requests
func GetBestRemoteAddress(r *http.Request) string {
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

// WantsPretty returns true if ?pretty query param is set to anything but "0" or "false"
func WantsPretty(r *http.Request) bool {
	if r == nil || !r.URL.Query().Has("pretty") {
		return false
	}
	v := r.URL.Query().Get("pretty")
	return v != "0" && v != "false"
}

// ServeJSON writes v as JSON with a given status code.
// The output is indented if the request has ?pretty=1
func ServeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	d, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if WantsPretty(r) {
		d = pretty.Pretty(d)
	} else {
		d = append(d, '\n')
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	w.Write(d)
}

// ErrorResponse is the body of error responses
type ErrorResponse struct {
	Error string `json:"error"`
}

// ServeError writes a JSON error response
func ServeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	if msg == "" {
		msg = http.StatusText(code)
	}
	ServeJSON(w, r, code, &ErrorResponse{Error: msg})
}

package transport

import (
	"net/http"
	"net/http/httptest"
)

// NewInProcess returns a transport that serves requests with h directly,
// without a listener.
func NewInProcess(h http.Handler, opts ...Option) *HTTP {
	opts = append([]Option{WithHTTPClient(&http.Client{Transport: handlerRoundTripper{h}})}, opts...)
	return NewHTTP("http://in-process", opts...)
}

type handlerRoundTripper struct {
	handler http.Handler
}

func (rt handlerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	rec := httptest.NewRecorder()
	rt.handler.ServeHTTP(rec, req)
	resp := rec.Result()
	resp.Request = req
	return resp, nil
}

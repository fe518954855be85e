package precache

import (
	"io"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// ServeHTTP implements the http.Handler interface.
// It forwards the request to the origin of the base URL (same path and query),
// going through RoundTrip so that precached resources are served cache-first.
func (p *Precache) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer p.recover(w)

	originReq := p.originRequest(r)
	res, err := p.RoundTrip(originReq)
	if err != nil {
		p.requestLogger(r).Error().Err(err).Str("url", originReq.URL.String()).Msg("Error contacting origin")
		http.Error(w, "Error contacting origin", http.StatusBadGateway)
		return
	}
	if err := send(w, res); err != nil {
		p.requestLogger(r).Error().Err(err).Msg("Could not write response body to client")
	}
}

// recover recovers from panics in the handler, answering with a 502.
func (p *Precache) recover(w http.ResponseWriter) {
	if err := recover(); err != nil {
		p.log.Error().Interface("error", err).Msg("Panic in cache handler")
		http.Error(w, "Error contacting origin", http.StatusBadGateway)
	}
}

// originRequest creates the outgoing request for the origin.
func (p *Precache) originRequest(r *http.Request) *http.Request {
	req := r.Clone(r.Context())
	req.RequestURI = ""
	req.URL.Scheme = p.keyer.Base.Scheme
	req.URL.Host = p.keyer.Base.Host
	req.Host = p.keyer.Base.Host
	// need to specifically set body to nil on the outgoing request if content is zero length
	// see https://github.com/golang/go/issues/16036
	if r.ContentLength == 0 {
		req.Body = nil
	}
	req.Header = make(http.Header)
	copyHeader(req.Header, r.Header)
	// do not forward connection header, this causes trouble
	req.Header.Del("Connection")
	// let the transport negotiate compression, so stored bodies are always decoded
	req.Header.Del("Accept-Encoding")
	return req
}

// requestLogger returns the logger from the request context, if there is one.
func (p *Precache) requestLogger(r *http.Request) *zerolog.Logger {
	logger := hlog.FromRequest(r)
	if logger.GetLevel() == zerolog.Disabled {
		logger = &p.log
	}
	return logger
}

func send(w http.ResponseWriter, res *http.Response) error {
	if res.Body != nil {
		defer res.Body.Close()
	}
	copyHeader(w.Header(), res.Header)
	w.WriteHeader(res.StatusCode)
	if res.Body == nil {
		return nil
	}
	_, err := io.Copy(w, res.Body)
	return err
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		// this is a workaround to remove default headers sent by an upstream proxy
		// some servers do not like the presence of these headers in the downstream request
		if k != "X-Forwarded-For" && k != "X-Forwarded-Proto" && k != "X-Forwarded-Host" {
			for _, v := range vv {
				dst.Add(k, v)
			}
		}
	}
}

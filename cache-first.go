package precache

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/always-cache/precache/cache"
	cachestatus "github.com/always-cache/precache/pkg/cache-status"
	serializer "github.com/always-cache/precache/pkg/response-serializer"
)

const networkErrorBody = "Could not connect to origin\n"

// cacheFirst serves the request from the cache if possible.
// On a miss the original request (query included) is sent to the network,
// and a successful response is stored under the normalized key.
// Partial content (206) is returned but never stored.
// It always returns a response.
func (p *Precache) cacheFirst(c cache.Cache, r *http.Request) *http.Response {
	key := p.keyer.GetKey(r)
	log := p.log.With().Str("key", key).Logger()
	var cacheStatus cachestatus.CacheStatus

	if bytes, ok, err := c.Get(key); err != nil {
		log.Error().Err(err).Msg("Could not retrieve from cache")
	} else if ok {
		if sRes, err := serializer.BytesToStoredResponse(bytes); err != nil {
			// a corrupted entry is treated as a miss and overwritten below
			log.Error().Err(err).Msg("Could not read stored response")
		} else {
			closeRequestBody(r)
			cacheStatus.Hit()
			res := sRes.Response(r)
			res.Header.Set(cachestatus.HeaderName, cacheStatus.String())
			p.logResponse(r, res.StatusCode, cacheStatus)
			return res
		}
	}

	cacheStatus.Forward(cachestatus.FwdReasonUriMiss)
	log.Trace().Msg("Forwarding to network")
	res, err := p.transport.RoundTrip(r)
	if err != nil {
		log.Warn().Err(err).Msg("Could not fetch response from network")
		cacheStatus.Detail = cachestatus.DetailNetworkError
		return networkErrorResponse(r, cacheStatus)
	}

	if isStorable(res.StatusCode) {
		sRes, err := serializer.FromResponse(res)
		if err == nil {
			err = r.Context().Err()
		}
		if err != nil {
			// the response body is gone or the request was abandoned, do not store a partial response
			log.Warn().Err(err).Msg("Could not read response from network")
			cacheStatus.Detail = cachestatus.DetailNetworkError
			return networkErrorResponse(r, cacheStatus)
		}
		if bytes, err := serializer.StoredResponseToBytes(sRes); err != nil {
			log.Error().Err(err).Msg("Could not serialize response")
		} else if err := c.Put(key, bytes); err != nil {
			log.Error().Err(err).Msg("Could not write to cache")
		} else {
			cacheStatus.Stored = true
			log.Trace().Int("bytes", len(bytes)).Msg("Cache write")
		}
	}

	res.Header.Set(cachestatus.HeaderName, cacheStatus.String())
	p.logResponse(r, res.StatusCode, cacheStatus)
	return res
}

// networkErrorResponse creates the response returned when the network cannot be reached.
func networkErrorResponse(r *http.Request, cacheStatus cachestatus.CacheStatus) *http.Response {
	header := http.Header{}
	header.Set("Content-Type", "text/plain; charset=utf-8")
	header.Set("Content-Length", strconv.Itoa(len(networkErrorBody)))
	header.Set(cachestatus.HeaderName, cacheStatus.String())
	return &http.Response{
		Status:        "502 Bad Gateway",
		StatusCode:    http.StatusBadGateway,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(strings.NewReader(networkErrorBody)),
		ContentLength: int64(len(networkErrorBody)),
		Request:       r,
	}
}

func (p *Precache) logResponse(r *http.Request, statusCode int, cs cachestatus.CacheStatus) {
	isHit := 0
	if cs.IsHit() {
		isHit = 1
	}
	p.log.Debug().
		Str("method", r.Method).
		Str("url", r.URL.String()).
		Int("code", statusCode).
		Str("status", string(cs.Status)).
		Str("fwd", string(cs.FwdReason)).
		Bool("stored", cs.Stored).
		Int("hit", isHit).
		Msg("Sending response")
}

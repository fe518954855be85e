package serializer

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const storedAtHeaderName = "Precache-Stored-At"

// StoredResponse is the part of an HTTP response that is kept in the cache.
type StoredResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// The value of the clock at the time the response was stored.
	StoredAt time.Time
}

// FromResponse reads the whole body of res and returns a stored copy of it.
// When it returns without error, res.Body has been replaced with a reader
// over the same bytes, so the response can still be handed to the caller.
func FromResponse(res *http.Response) (StoredResponse, error) {
	sRes := StoredResponse{
		StatusCode: res.StatusCode,
		Header:     res.Header.Clone(),
		StoredAt:   time.Now(),
	}
	if sRes.Header == nil {
		sRes.Header = http.Header{}
	}
	if res.Body == nil || res.Body == http.NoBody {
		return sRes, nil
	}
	body, err := io.ReadAll(res.Body)
	res.Body.Close()
	if err != nil {
		return sRes, fmt.Errorf("Could not read response body: %w", err)
	}
	sRes.Body = body
	res.Body = io.NopCloser(bytes.NewReader(body))
	return sRes, nil
}

// Response creates a new http.Response from the stored response.
// Every call returns an independent body reader.
func (s StoredResponse) Response(req *http.Request) *http.Response {
	header := s.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", s.StatusCode, http.StatusText(s.StatusCode)),
		StatusCode:    s.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(s.Body)),
		ContentLength: int64(len(s.Body)),
		Request:       req,
	}
}

// StoredResponseToBytes returns the HTTP/1.1 representation of the stored response.
// The storage time is kept in an extra header.
func StoredResponseToBytes(s StoredResponse) ([]byte, error) {
	res := s.Response(nil)
	res.Header.Set(storedAtHeaderName, strconv.FormatInt(s.StoredAt.Unix(), 10))
	buf := &bytes.Buffer{}
	if err := res.Write(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BytesToStoredResponse parses bytes created by StoredResponseToBytes.
func BytesToStoredResponse(b []byte) (StoredResponse, error) {
	sRes := StoredResponse{}
	res, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(b)), nil)
	if err != nil {
		return sRes, err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return sRes, err
	}
	sRes.StatusCode = res.StatusCode
	sRes.Header = res.Header
	sRes.Body = body
	if storedAt, err := strconv.ParseInt(res.Header.Get(storedAtHeaderName), 10, 64); err == nil {
		sRes.StoredAt = time.Unix(storedAt, 0)
	}
	// delete extra headers
	sRes.Header.Del(storedAtHeaderName)
	// Content-Length is derived from the body again when the response is created
	sRes.Header.Del("Content-Length")
	return sRes, nil
}

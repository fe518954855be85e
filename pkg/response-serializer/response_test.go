package serializer

import (
	"bufio"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestFromResponseBodyIntact(t *testing.T) {
	response := "HTTP/1.1 200 OK\r\nServer: Test\r\nContent-Length: 16\r\n\r\nThis is the body"

	res, err := http.ReadResponse(bufio.NewReader(strings.NewReader(response)), nil)
	if err != nil {
		t.Fatal(err)
	}

	sRes, err := FromResponse(res)
	if err != nil {
		t.Fatalf("Error: %v", err)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("Error: %v", err)
	}
	if string(body) != "This is the body" {
		t.Fatalf("Body: %s", body)
	}
	if string(sRes.Body) != "This is the body" {
		t.Fatalf("Stored body: %s", sRes.Body)
	}
}

func TestStoredResponseSerialization(t *testing.T) {
	header := http.Header{}
	header.Add("Content-Type", "text/css")
	header.Add("Test", "-ing")
	storedAt := time.Unix(time.Now().Unix(), 0)
	bts, err := StoredResponseToBytes(StoredResponse{
		StatusCode: 201,
		Header:     header,
		Body:       []byte("body { color: red; }"),
		StoredAt:   storedAt,
	})
	if err != nil {
		t.Fatalf("Error creating bytes: %+v", err)
	}

	sRes, err := BytesToStoredResponse(bts)
	if err != nil {
		t.Fatalf("Error creating response: %+v", err)
	}
	if sRes.StatusCode != 201 {
		t.Fatalf("Status is %d", sRes.StatusCode)
	}
	if sRes.Header.Get("Test") != "-ing" || sRes.Header.Get("Content-Type") != "text/css" {
		t.Fatalf("Headers wrong %+v", sRes.Header)
	}
	if sRes.Header.Get(storedAtHeaderName) != "" {
		t.Fatalf("Internal header leaked %+v", sRes.Header)
	}
	if !sRes.StoredAt.Equal(storedAt) {
		t.Fatalf("Stored at %s, expected %s", sRes.StoredAt, storedAt)
	}
	if string(sRes.Body) != "body { color: red; }" {
		t.Fatalf("Body is %s", sRes.Body)
	}
}

func TestResponseBodiesAreIndependent(t *testing.T) {
	sRes := StoredResponse{StatusCode: 200, Header: http.Header{}, Body: []byte("elm")}
	first, _ := io.ReadAll(sRes.Response(nil).Body)
	second, _ := io.ReadAll(sRes.Response(nil).Body)
	if string(first) != "elm" || string(second) != "elm" {
		t.Fatalf("Bodies are %s and %s", first, second)
	}
}

func TestEmptyBodySerialization(t *testing.T) {
	bts, err := StoredResponseToBytes(StoredResponse{StatusCode: 200, Header: http.Header{}})
	if err != nil {
		t.Fatal(err)
	}
	sRes, err := BytesToStoredResponse(bts)
	if err != nil {
		t.Fatal(err)
	}
	if len(sRes.Body) != 0 {
		t.Fatalf("Body is %q", sRes.Body)
	}
}

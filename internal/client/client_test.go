package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	Name   string `json:"name" validate:"required"`
	Amount string `json:"amount" validate:"required,number"`
}

func newServer(t *testing.T, status int, body string) (*APIClient, *http.Request) {
	t.Helper()
	var seen http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = *r
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewAPIClient(srv.URL+"/", "/api/v1", srv.Client()), &seen
}

func TestGetDecodesAndValidates(t *testing.T) {
	c, seen := newServer(t, http.StatusOK, `{"name":"weth","amount":"20000000000000000"}`)

	var got item
	require.NoError(t, c.Get(context.Background(), "/things/1", &got))
	assert.Equal(t, item{Name: "weth", Amount: "20000000000000000"}, got)
	assert.Equal(t, "/api/v1/things/1", seen.URL.Path)
	assert.Equal(t, "application/json", seen.Header.Get("Accept"))
}

func TestPostSendsJSON(t *testing.T) {
	var received map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`"0xabc"`))
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL, "/api/v1", srv.Client())
	var uid string
	require.NoError(t, c.Post(context.Background(), "/orders", map[string]string{"kind": "sell"}, &uid))
	assert.Equal(t, "0xabc", uid)
	assert.Equal(t, "sell", received["kind"])
}

func TestStatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		transport bool
	}{
		{http.StatusBadRequest, false},
		{http.StatusNotFound, false},
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusServiceUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c, _ := newServer(t, tt.status, `{"errorType":"X","description":"nope"}`)

			err := c.Get(context.Background(), "/x", nil)

			var statusErr *StatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, tt.status, statusErr.StatusCode)
			assert.JSONEq(t, `{"errorType":"X","description":"nope"}`, string(statusErr.Body))
			assert.Equal(t, tt.transport, errors.Is(err, ErrTransport))
		})
	}
}

func TestMalformedResponsesAreTransportErrors(t *testing.T) {
	for name, body := range map[string]string{
		"bad json":      `{"name":`,
		"failed checks": `{"name":"weth","amount":"lots"}`,
	} {
		t.Run(name, func(t *testing.T) {
			c, _ := newServer(t, http.StatusOK, body)
			var got item
			err := c.Get(context.Background(), "/x", &got)
			assert.ErrorIs(t, err, ErrTransport)
		})
	}
}

func TestConnectionFailureIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	c := NewAPIClient(srv.URL, "", srv.Client())
	srv.Close()

	err := c.Get(context.Background(), "/x", nil)
	assert.ErrorIs(t, err, ErrTransport)
}

func TestCancelledRequestIsNotTransportError(t *testing.T) {
	c, _ := newServer(t, http.StatusOK, `{}`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Get(ctx, "/x", nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTransport)
}

func TestValidateSlices(t *testing.T) {
	c := NewAPIClient("http://example.com", "", nil)

	assert.NoError(t, c.Validate(&[]item{{Name: "a", Amount: "1"}}))
	err := c.Validate([]item{{Name: "a", Amount: "1"}, {Name: "", Amount: "2"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "item 1")
}

func TestBuildURLWithParams(t *testing.T) {
	assert.Equal(t, "/trades", BuildURLWithParams("/trades", nil))
	assert.Equal(t, "/trades?orderUid=0x01", BuildURLWithParams("/trades", map[string]string{"orderUid": "0x01"}))
	assert.Equal(t, "/trades?a=1&orderUid=0x01", BuildURLWithParams("/trades?a=1", map[string]string{"orderUid": "0x01"}))
}

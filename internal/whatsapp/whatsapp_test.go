package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloudSenderPostsTextMessage(t *testing.T) {
	var (
		gotPath, gotAuth string
		gotMsg           textMessage
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotMsg))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.1"}]}`))
	}))
	defer srv.Close()

	s := NewCloudSender(CloudConfig{APIURL: srv.URL + "/", PhoneNumberID: "555", Token: "secret", PerMinute: 600}, nil)
	err := s.Send(context.Background(), "+91 98765-43210", "Hello Asha")
	require.NoError(t, err)

	assert.Equal(t, "/555/messages", gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "whatsapp", gotMsg.MessagingProduct)
	assert.Equal(t, "919876543210", gotMsg.To)
	assert.Equal(t, "text", gotMsg.Type)
	assert.Equal(t, "Hello Asha", gotMsg.Text.Body)
}

func TestCloudSenderAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid OAuth access token.","code":190}}`))
	}))
	defer srv.Close()

	s := NewCloudSender(CloudConfig{APIURL: srv.URL, PhoneNumberID: "555", Token: "bad"}, nil)
	err := s.Send(context.Background(), "+919876543210", "hi")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, 190, apiErr.Code)
	assert.Contains(t, err.Error(), "Invalid OAuth access token.")
}

func TestCloudSenderNonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewCloudSender(CloudConfig{APIURL: srv.URL, PhoneNumberID: "555"}, nil)
	err := s.Send(context.Background(), "+919876543210", "hi")
	assert.EqualError(t, err, "whatsapp api: status 502")
}

func TestCloudSenderHonoursContextWhileWaiting(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	s := NewCloudSender(CloudConfig{APIURL: srv.URL, PhoneNumberID: "555", PerMinute: 1}, nil)
	require.NoError(t, s.Send(context.Background(), "+919876543210", "first"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := s.Send(ctx, "+919876543210", "second")
	require.Error(t, err)
	assert.Equal(t, 1, calls, "a paced message must not reach the API")
}

func TestCloudSenderUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	s := NewCloudSender(CloudConfig{APIURL: url, PhoneNumberID: "555", Timeout: time.Second}, nil)
	err := s.Send(context.Background(), "+919876543210", "hi")
	require.Error(t, err)
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}

func TestLink(t *testing.T) {
	got := Link("+91 98765 43210", "Hello Asha, renew & return!")
	assert.Equal(t, "https://wa.me/919876543210?text=Hello+Asha%2C+renew+%26+return%21", got)
}

func TestLinkSender(t *testing.T) {
	var buf bytes.Buffer
	s := NewLinkSender(&buf)
	require.NoError(t, s.Send(context.Background(), "+919876543210", "hi there"))
	out := buf.String()
	assert.True(t, strings.Contains(out, "+919876543210"))
	assert.Contains(t, out, "https://wa.me/919876543210?text=hi+there")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Send(ctx, "+919876543210", "late"), context.Canceled)
}

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "********3210", maskPhone("+91 98765 43210"))
	assert.Equal(t, "12", maskPhone("12"))
}

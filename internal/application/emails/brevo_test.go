package emails

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrevoClient_SendHandoffCode(t *testing.T) {
	var got BrevoSendRequest
	var apiKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey = r.Header.Get("api-key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := &BrevoClient{APIKey: "k", Endpoint: srv.URL}
	err := c.SendHandoffCode(context.Background(), HandoffEmail{
		To:           "bea@uni.ac.uk",
		ListingTitle: "Desk <lamp>",
		Code:         "004211",
		Link:         "https://unimarket.app/VerifyHandoff?oid=1&t=abc",
		QRImageURL:   "https://api.qrserver.com/v1/create-qr-code/?size=200x200&data=x",
		ExpiresAt:    time.Date(2025, 3, 1, 14, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.Equal(t, "k", apiKey)
	assert.Equal(t, "Pickup code for Desk <lamp>", got.Subject)
	require.Len(t, got.To, 1)
	assert.Equal(t, "bea@uni.ac.uk", got.To[0].Email)
	assert.Contains(t, got.HTMLContent, "004211")
	assert.Contains(t, got.HTMLContent, "Desk &lt;lamp&gt;")
	assert.Contains(t, got.HTMLContent, "14:00 UTC, 1 Mar 2025")
}

func TestBrevoClient_Failures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := &BrevoClient{APIKey: "k", Endpoint: srv.URL}
	err := c.SendVerification(context.Background(), "a@uni.ac.uk", "", "https://x/Verify")
	assert.ErrorContains(t, err, "status 400")
}

func TestBrevoClient_NoKeyIsNoop(t *testing.T) {
	c := &BrevoClient{Endpoint: "http://127.0.0.1:1"}
	assert.NoError(t, c.SendVerification(context.Background(), "a@uni.ac.uk", "A", "https://x/Verify"))
}

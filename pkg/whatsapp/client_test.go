package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendText(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "123456789", "token-abc")
	err := c.SendText(context.Background(), "972520000001", "נמצאה התאמה!")
	require.NoError(t, err)

	assert.Equal(t, "/123456789/messages", gotPath)
	assert.Equal(t, "Bearer token-abc", gotAuth)
	assert.Equal(t, "whatsapp", gotBody["messaging_product"])
	assert.Equal(t, "972520000001", gotBody["to"])
	assert.Equal(t, "text", gotBody["type"])
	assert.Equal(t, "נמצאה התאמה!", gotBody["text"].(map[string]any)["body"])
}

func TestSendTextRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "invalid token"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "123456789", "bad-token")
	err := c.SendText(context.Background(), "972520000001", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

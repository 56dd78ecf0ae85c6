package lineapi

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	secret := "test-channel-secret"
	body := []byte(`{"events":[{"type":"follow"}]}`)

	assert.True(t, VerifySignature(secret, body, sign(secret, body)))
	assert.False(t, VerifySignature(secret, body, sign("other-secret", body)))
	assert.False(t, VerifySignature(secret, []byte(`{"events":[]}`), sign(secret, body)))
	assert.False(t, VerifySignature(secret, body, ""))
	assert.False(t, VerifySignature("", body, sign(secret, body)))
	assert.False(t, VerifySignature(secret, body, "not-base64-at-all"))
}

func TestClient_GetProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/bot/profile/U1234", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"userId":"U1234","displayName":"Taro","pictureUrl":"https://example.com/p.jpg"}`))
	}))
	defer srv.Close()

	client := NewClient("test-token", zap.NewNop(), WithBaseURL(srv.URL))

	profile, err := client.GetProfile(context.Background(), "U1234")
	require.NoError(t, err)
	assert.Equal(t, "U1234", profile.UserID)
	assert.Equal(t, "Taro", profile.DisplayName)
	assert.Equal(t, "https://example.com/p.jpg", profile.PictureURL)
}

func TestClient_GetProfile_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message":"Not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient("test-token", zap.NewNop(), WithBaseURL(srv.URL))

	_, err := client.GetProfile(context.Background(), "U-missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestClient_Reply(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient("test-token", zap.NewNop(), WithBaseURL(srv.URL))

	err := client.Reply(context.Background(), "reply-token-1", NewTextMessage("hello"))
	require.NoError(t, err)
	assert.Equal(t, "/v2/bot/message/reply", gotPath)
}

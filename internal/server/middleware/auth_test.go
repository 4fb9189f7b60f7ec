package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(t *testing.T, h http.Handler, header, value string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/listings", nil)
	if header != "" {
		req.Header.Set(header, value)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuth_DisabledWhenNoKeyConfigured(t *testing.T) {
	h := Auth("", "")(okHandler())
	rec := doRequest(t, h, "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuth_PlainKeyViaBearerAndHeader(t *testing.T) {
	h := Auth("s3cret", "")(okHandler())

	assert.Equal(t, http.StatusOK, doRequest(t, h, "Authorization", "Bearer s3cret").Code)
	assert.Equal(t, http.StatusOK, doRequest(t, h, "X-API-Key", "s3cret").Code)
	assert.Equal(t, http.StatusUnauthorized, doRequest(t, h, "X-API-Key", "wrong").Code)
	assert.Equal(t, http.StatusUnauthorized, doRequest(t, h, "", "").Code)
}

func TestAuth_BcryptHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	h := Auth("", string(hash))(okHandler())

	assert.Equal(t, http.StatusOK, doRequest(t, h, "X-API-Key", "s3cret").Code)
	assert.Equal(t, http.StatusUnauthorized, doRequest(t, h, "X-API-Key", "wrong").Code)
}

func TestAuth_HashTakesPrecedenceOverPlainKey(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-key"), bcrypt.MinCost)
	require.NoError(t, err)

	h := Auth("plain-key", string(hash))(okHandler())

	assert.Equal(t, http.StatusOK, doRequest(t, h, "X-API-Key", "hashed-key").Code)
	assert.Equal(t, http.StatusUnauthorized, doRequest(t, h, "X-API-Key", "plain-key").Code)
}

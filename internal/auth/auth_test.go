package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestJWT_SignVerify(t *testing.T) {
	j := JWT{Secret: []byte("s3cret"), TokenTTL: time.Hour}
	tok, exp, err := j.Sign(Claims{Role: "operator", RegisteredClaims: jwt.RegisteredClaims{Subject: "ops"}})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, time.Minute)

	claims, err := j.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
	assert.Equal(t, DefaultIssuer, claims.Issuer)

	_, err = JWT{Secret: []byte("other")}.Verify(tok)
	assert.Error(t, err)
	_, err = JWT{Secret: []byte("s3cret"), Issuer: "someone-else"}.Verify(tok)
	assert.Error(t, err)
}

func TestJWT_Expired(t *testing.T) {
	j := JWT{Secret: []byte("s3cret")}
	past := time.Now().Add(-time.Hour)
	tok, _, err := j.Sign(Claims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(past)}})
	require.NoError(t, err)
	_, err = j.Verify(tok)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", bearerToken("Bearer abc"))
	assert.Equal(t, "abc", bearerToken("bearer  abc "))
	assert.Empty(t, bearerToken("Basic abc"))
	assert.Empty(t, bearerToken("abc"))
	assert.Empty(t, bearerToken(""))
}

func newRouter(j JWT, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuditWrites(logger))
	r.POST("/api/thing", RequireBearer(j), func(c *gin.Context) {
		claims, _ := ClaimsFromGin(c)
		c.String(http.StatusOK, claims.Subject)
	})
	return r
}

func TestRequireBearer(t *testing.T) {
	j := JWT{Secret: []byte("s3cret"), TokenTTL: time.Hour}
	core, logs := observer.New(zap.InfoLevel)
	r := newRouter(j, zap.New(core))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/thing", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/thing", nil)
	req.Header.Set("Authorization", "Bearer nope")
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	tok, _, err := j.Sign(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "ops"}})
	require.NoError(t, err)
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/thing", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ops", rec.Body.String())

	entries := logs.FilterMessage("api write").All()
	require.Len(t, entries, 3)
	assert.Equal(t, "ops", entries[2].ContextMap()["subject"])
}

func TestRequireBearer_DisabledWithoutSecret(t *testing.T) {
	r := newRouter(JWT{}, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/thing", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexander-mattos/baileys/config"
	pkgerrors "github.com/alexander-mattos/baileys/pkg/errors"
)

func newTestVerifier(skip bool) *Verifier {
	return NewVerifier(&config.AuthConfig{
		SkipAuth:      skip,
		JWTSecret:     "test-secret",
		DefaultTenant: "company-1",
	})
}

func TestVerifier_SkipAuth(t *testing.T) {
	v := newTestVerifier(true)

	tenant, err := v.Resolve("", "", "")
	require.NoError(t, err)
	assert.Equal(t, "company-1", tenant)

	tenant, err = v.Resolve("", "", "company-7")
	require.NoError(t, err)
	assert.Equal(t, "company-7", tenant)
}

func TestVerifier_BearerToken(t *testing.T) {
	v := newTestVerifier(false)

	token, err := v.Issue("company-3", time.Minute)
	require.NoError(t, err)

	tenant, err := v.Resolve("Bearer "+token, "", "company-9")
	require.NoError(t, err)
	assert.Equal(t, "company-3", tenant)

	tenant, err = v.Resolve("", token, "")
	require.NoError(t, err)
	assert.Equal(t, "company-3", tenant)
}

func TestVerifier_NumericCompanyID(t *testing.T) {
	v := newTestVerifier(false)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"companyId": 4,
		"exp":       time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	tenant, err := v.TenantFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, "company-4", tenant)
}

func TestVerifier_Rejects(t *testing.T) {
	v := newTestVerifier(false)

	expired, err := v.Issue("company-1", -time.Minute)
	require.NoError(t, err)

	foreign, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"companyId": "company-1",
	}).SignedString([]byte("other-secret"))
	require.NoError(t, err)

	noClaim, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user",
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"garbage", "not-a-jwt"},
		{"expired", expired},
		{"wrong secret", foreign},
		{"no tenant claim", noClaim},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Resolve("Bearer "+tt.token, "", "")
			var unauthorized *pkgerrors.UnauthorizedError
			assert.ErrorAs(t, err, &unauthorized)
		})
	}
}

func TestTenantFromCompanyID(t *testing.T) {
	assert.Equal(t, "company-1", TenantFromCompanyID("1"))
	assert.Equal(t, "company-1", TenantFromCompanyID(" company-1 "))
	assert.Equal(t, "", TenantFromCompanyID(""))
}

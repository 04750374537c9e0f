package auth

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/alexander-mattos/baileys/config"
	pkgerrors "github.com/alexander-mattos/baileys/pkg/errors"
)

const tenantClaim = "companyId"

// Verifier resolves the tenant of a request from a bearer token
type Verifier struct {
	cfg    *config.AuthConfig
	secret []byte
}

// NewVerifier creates a new token verifier
func NewVerifier(cfg *config.AuthConfig) *Verifier {
	return &Verifier{
		cfg:    cfg,
		secret: []byte(cfg.JWTSecret),
	}
}

// Resolve returns the tenant for a request.
// With auth skipped the explicit tenant header wins over the default tenant.
func (v *Verifier) Resolve(authorization, queryToken, tenantHeader string) (string, error) {
	if v.cfg.SkipAuth {
		if tenant := strings.TrimSpace(tenantHeader); tenant != "" {
			return tenant, nil
		}
		return v.cfg.DefaultTenant, nil
	}

	token := strings.TrimSpace(strings.TrimPrefix(authorization, "Bearer "))
	if token == "" {
		token = strings.TrimSpace(queryToken)
	}
	if token == "" {
		return "", pkgerrors.NewUnauthorizedError("missing bearer token")
	}

	return v.TenantFromToken(token)
}

// TenantFromToken validates an HS256 token and returns its companyId claim
func (v *Verifier) TenantFromToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return "", pkgerrors.NewUnauthorizedError("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", pkgerrors.NewUnauthorizedError("invalid token")
	}

	switch value := claims[tenantClaim].(type) {
	case string:
		if value != "" {
			return value, nil
		}
	case float64:
		return TenantFromCompanyID(strconv.FormatInt(int64(value), 10)), nil
	}

	return "", pkgerrors.NewUnauthorizedError("token has no companyId claim")
}

// Issue signs a token for tenant; used by operators and tests
func (v *Verifier) Issue(tenant string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		tenantClaim: tenant,
		"iat":       time.Now().Unix(),
		"exp":       time.Now().Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// TenantFromCompanyID turns a bare numeric company id into a tenant name,
// e.g. "1" becomes "company-1". Other values are returned unchanged.
func TenantFromCompanyID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	if _, err := strconv.ParseUint(id, 10, 64); err == nil {
		return "company-" + id
	}
	return id
}

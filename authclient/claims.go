package authclient

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/welkome/identity"
)

// idTokenClaims are the ID token claims the client reads.
type idTokenClaims struct {
	jwt.RegisteredClaims
	ObjectID          string `json:"oid"`
	TenantID          string `json:"tid"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
	Nonce             string `json:"nonce"`
}

// parseIDToken decodes an ID token without verifying its signature. The
// token came straight from the token endpoint over the back channel, so the
// transport already authenticated the issuer.
func parseIDToken(raw string) (*idTokenClaims, error) {
	claims := &idTokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("failed to parse id token: %w", err)
	}
	return claims, nil
}

// accountFromClaims builds the account for a signed-in user. Providers
// without oid/tid fall back to sub and the authority tenant.
func accountFromClaims(claims *idTokenClaims, environment, authorityTenant string) (identity.Account, error) {
	oid := claims.ObjectID
	if oid == "" {
		oid = claims.Subject
	}
	tid := claims.TenantID
	if tid == "" {
		tid = authorityTenant
	}
	if oid == "" {
		return identity.Account{}, fmt.Errorf("id token carries neither oid nor sub")
	}

	homeAccountID := oid
	if tid != "" {
		homeAccountID = oid + "." + tid
	}

	return identity.Account{
		HomeAccountID:  homeAccountID,
		LocalAccountID: oid,
		Username:       claims.PreferredUsername,
		Name:           claims.Name,
		TenantID:       tid,
		Environment:    environment,
	}, nil
}

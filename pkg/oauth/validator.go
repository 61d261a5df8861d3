package oauth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Validation error codes carried in a ValidationResult
const (
	CodeInvalidSignature = "invalid_signature"
	CodeInvalidToken     = "invalid_token"
	CodeTokenExpired     = "token_expired"
)

// Claims are the typed claims of a successfully validated token
type Claims struct {
	Audience  string
	Issuer    string
	Subject   string
	Scope     string
	TenantID  string
	Version   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ValidationResult is the outcome of validating one token. Validation never
// panics or errors across the caller boundary; failures are carried as a
// code plus description.
type ValidationResult struct {
	Valid       bool
	Code        string
	Description string
	Claims      *Claims
}

func failure(code, description string) ValidationResult {
	return ValidationResult{Code: code, Description: description}
}

// ValidatorConfig configures token verification
type ValidatorConfig struct {
	// Issuer is the required iss claim
	Issuer string

	// Audience, when set, is the required aud claim
	Audience string

	// JWKSURL points at a key set endpoint; mutually exclusive with PublicKey
	JWKSURL string

	// PublicKey verifies signatures directly, bypassing JWKS fetch
	PublicKey *rsa.PublicKey

	// HTTPClient fetches the JWKS; a default client with a 5s timeout is
	// used when nil
	HTTPClient *http.Client
}

// Validator verifies RS256 tokens against an issuer's key material
type Validator struct {
	cfg    ValidatorConfig
	client *http.Client

	// now is injectable for expiry tests
	now func() time.Time
}

// NewValidator creates a validator for the given configuration
func NewValidator(cfg ValidatorConfig) *Validator {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &Validator{cfg: cfg, client: client, now: time.Now}
}

// Validate verifies signature, issuer, expiry and audience, in that order
func (v *Validator) Validate(ctx context.Context, tokenString string) ValidationResult {
	keyfunc := func(token *jwt.Token) (any, error) {
		if v.cfg.PublicKey != nil {
			return v.cfg.PublicKey, nil
		}
		kid, _ := token.Header["kid"].(string)
		return v.fetchKey(ctx, kid)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256"}),
		// Expiry and audience are checked manually below so each failure
		// maps to its own error code
		jwt.WithoutClaimsValidation(),
	)

	token, err := parser.Parse(tokenString, keyfunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return failure(CodeInvalidSignature, "token signature verification failed")
		}
		return failure(CodeInvalidToken, fmt.Sprintf("token could not be parsed: %v", err))
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return failure(CodeInvalidToken, "token carries no claims")
	}

	iss, _ := claims["iss"].(string)
	if iss != v.cfg.Issuer {
		return failure(CodeInvalidToken, fmt.Sprintf("issuer mismatch: got %q", iss))
	}

	expUnix, ok := numericClaim(claims, "exp")
	if !ok {
		return failure(CodeInvalidToken, "token carries no expiry")
	}
	exp := time.Unix(expUnix, 0)
	if !exp.After(v.now()) {
		return failure(CodeTokenExpired, "token has expired")
	}

	aud, _ := claims["aud"].(string)
	if v.cfg.Audience != "" && aud != v.cfg.Audience {
		return failure(CodeInvalidToken, fmt.Sprintf("audience mismatch: got %q", aud))
	}

	iatUnix, _ := numericClaim(claims, "iat")
	sub, _ := claims["sub"].(string)
	scope, _ := claims["scope"].(string)
	tid, _ := claims["tid"].(string)
	ver, _ := claims["ver"].(string)

	return ValidationResult{
		Valid: true,
		Claims: &Claims{
			Audience:  aud,
			Issuer:    iss,
			Subject:   sub,
			Scope:     scope,
			TenantID:  tid,
			Version:   ver,
			IssuedAt:  time.Unix(iatUnix, 0),
			ExpiresAt: exp,
		},
	}
}

// numericClaim reads a Unix timestamp claim, tolerating json.Number decoding
func numericClaim(claims jwt.MapClaims, name string) (int64, bool) {
	switch v := claims[name].(type) {
	case float64:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	default:
		return 0, false
	}
}

// fetchKey retrieves the signing key with the given kid from the JWKS endpoint
func (v *Validator) fetchKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if v.cfg.JWKSURL == "" {
		return nil, fmt.Errorf("no public key and no JWKS URL configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.cfg.JWKSURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build JWKS request: %w", err)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS endpoint returned %d", resp.StatusCode)
	}

	var doc JWKS
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse JWKS: %w", err)
	}

	for _, key := range doc.Keys {
		if kid != "" && key.Kid != kid {
			continue
		}
		return jwkToPublicKey(key)
	}
	return nil, fmt.Errorf("no key %q in JWKS", kid)
}

// jwkToPublicKey rebuilds an RSA public key from its JWKS components
func jwkToPublicKey(key JWK) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(key.N)
	if err != nil {
		return nil, fmt.Errorf("invalid JWK modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(key.E)
	if err != nil {
		return nil, fmt.Errorf("invalid JWK exponent: %w", err)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}

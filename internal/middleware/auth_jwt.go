package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

// TokenClaims is the payload of the HS256 bearer tokens the API accepts.
// Locale, when present and supported, overrides the negotiated request
// locale so generated scripts follow the account language.
type TokenClaims struct {
	Sub      string `json:"sub"`
	Locale   string `json:"locale,omitempty"`
	Exp      int64  `json:"exp,omitempty"`
	Issuer   string `json:"iss,omitempty"`
	Audience string `json:"aud,omitempty"`
}

type userIDContextKey struct{}

var userIDKey userIDContextKey

var (
	errMalformedToken = errors.New("malformed token")
	errBadSignature   = errors.New("signature mismatch")
	errTokenExpired   = errors.New("token expired")
)

// SignJWT issues a compact HS256 token for claims. The API only verifies
// tokens; signing exists for tests and for operators minting tokens out of
// band.
func SignJWT(secret string, claims TokenClaims) (string, error) {
	headerJSON, err := json.Marshal(map[string]string{"alg": "HS256", "typ": "JWT"})
	if err != nil {
		return "", err
	}
	payloadJSON, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	signing := base64.RawURLEncoding.EncodeToString(headerJSON) + "." + base64.RawURLEncoding.EncodeToString(payloadJSON)
	return signing + "." + hmacSign(secret, signing), nil
}

func hmacSign(secret, data string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(data))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyJWT checks the signature and expiry of a compact HS256 token and
// returns its claims. Tokens declaring any other algorithm are rejected
// before the signature is inspected.
func VerifyJWT(secret, token string) (*TokenClaims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, errMalformedToken
	}
	headerJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, errMalformedToken
	}
	var header struct {
		Alg string `json:"alg"`
	}
	if err := json.Unmarshal(headerJSON, &header); err != nil || header.Alg != "HS256" {
		return nil, errMalformedToken
	}
	if !hmac.Equal([]byte(hmacSign(secret, parts[0]+"."+parts[1])), []byte(parts[2])) {
		return nil, errBadSignature
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, errMalformedToken
	}
	var claims TokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, errMalformedToken
	}
	if claims.Exp != 0 && time.Now().Unix() > claims.Exp {
		return nil, errTokenExpired
	}
	return &claims, nil
}

// AuthJWT guards a subtree with bearer auth. On success the token subject
// lands in the request context for the handlers.
func AuthJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w, "missing or malformed authorization header")
				return
			}
			claims, err := VerifyJWT(secret, token)
			if err != nil {
				unauthorized(w, err.Error())
				return
			}
			ctx := context.WithValue(r.Context(), userIDKey, claims.Sub)
			if loc := normalizeLocale(claims.Locale); loc != "" {
				ctx = context.WithValue(ctx, LocaleKey, loc)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// unauthorized mirrors the handlers' error envelope so clients parse auth
// failures the same way as any other API error.
func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": "unauthorized", "message": message},
	})
}

// UserIDFromContext returns the authenticated subject, or "" on open
// deployments that run without a JWT secret.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// ContextWithUserID attaches a subject outside the middleware path, for
// callers that act on behalf of a user after the original request ended.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	if strings.TrimSpace(userID) == "" {
		return ctx
	}
	return context.WithValue(ctx, userIDKey, userID)
}

package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-admin/core/featureswitch"
)

const (
	contextTokenKey = "userToken"

	// RoleAdmin may manage restriction rules. The root role may too.
	RoleAdmin = "admin"
)

func newJWTConfig(secretKey string) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(secretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	}
}

// Claims represents the authorization claims transmitted via a JWT.
// Role is the dashboard user's current role, as resolved from their profile.
type Claims struct {
	jwt.StandardClaims
	SchoolID string `json:"school_id,omitempty"`
	Role     string `json:"role,omitempty"`
}

func NewClaims(issuer, subject, schoolID, role string, ttl time.Duration) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    issuer,
			Subject:   subject,
			Audience:  "Dashboard",
			ExpiresAt: now.Add(ttl).Unix(),
			IssuedAt:  now.Unix(),
		},
		SchoolID: schoolID,
		Role:     role,
	}
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func GenerateToken(claims *Claims, secretKey string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString([]byte(secretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func getContextToken(ctx echo.Context) (*jwt.Token, Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return token, *claims, nil
		}
	}
	return nil, Claims{}, errUnauthorized
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	_, claims, err := getContextToken(ctx)
	return claims, err
}

// getContextSession returns the dashboard session of the authenticated user.
func getContextSession(ctx echo.Context) (featureswitch.Session, Claims, error) {
	token, claims, err := getContextToken(ctx)
	if err != nil {
		return featureswitch.Session{}, Claims{}, err
	}
	sess := featureswitch.Session{
		ID:       claims.Subject,
		SchoolID: claims.SchoolID,
		Token:    token.Raw,
	}
	return sess, claims, nil
}

func isPrivileged(role, rootRole string) bool {
	return role == RoleAdmin || (rootRole != "" && role == rootRole)
}

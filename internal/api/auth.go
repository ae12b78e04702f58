/*
JWT authentication for the control surface.

Provides token generation and validation with HS256, configurable
expiry, and role-based access control.

Requirements Coverage:
- REQ-API-005: JWT-based authentication
- REQ-API-006: Role-based method authorization
*/
package api

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/streamvault/streamvault-go/internal/logging"
)

// Claims is the JWT claim set carried by control-surface tokens.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	IAT    int64  `json:"iat"`
	EXP    int64  `json:"exp"`
}

// ValidRoles enumerates the roles recognized by the permission checker.
var ValidRoles = map[string]bool{
	"viewer":   true,
	"operator": true,
	"admin":    true,
}

// methodRoles maps each JSON-RPC method to the minimum role it
// requires; methods absent from this map require no particular role
// beyond authentication.
var methodRoles = map[string]string{
	"add_stream":      "operator",
	"remove_stream":   "operator",
	"start_recording": "operator",
	"stop_recording":  "operator",
	"trigger_rotation": "admin",
}

var roleRank = map[string]int{"viewer": 0, "operator": 1, "admin": 2}

// hasPermission reports whether role meets method's minimum role.
func hasPermission(role, method string) bool {
	required, ok := methodRoles[method]
	if !ok {
		return true
	}
	return roleRank[role] >= roleRank[required]
}

// clientRate tracks the fixed request-count window for one client.
type clientRate struct {
	count       int64
	windowStart time.Time
}

// JWTHandler issues and validates control-surface tokens and enforces
// a per-client request-rate window.
type JWTHandler struct {
	secretKey string
	logger    *logging.Logger

	rateMu     sync.Mutex
	rates      map[string]*clientRate
	rateLimit  int64
	rateWindow time.Duration
}

// NewJWTHandler constructs a JWTHandler. secretKey must be non-empty.
func NewJWTHandler(secretKey string, logger *logging.Logger) (*JWTHandler, error) {
	if strings.TrimSpace(secretKey) == "" {
		return nil, fmt.Errorf("jwt secret key must be provided")
	}
	if logger == nil {
		logger = logging.NewLogger("api-auth")
	}
	return &JWTHandler{
		secretKey:  secretKey,
		logger:     logger,
		rates:      make(map[string]*clientRate),
		rateLimit:  100,
		rateWindow: time.Minute,
	}, nil
}

// GenerateToken issues a signed token for userID/role, expiring after
// expiry (defaulting to 24h when non-positive).
func (h *JWTHandler) GenerateToken(userID, role string, expiry time.Duration) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", fmt.Errorf("user id cannot be empty")
	}
	if !ValidRoles[role] {
		return "", fmt.Errorf("invalid role: %s", role)
	}
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"iat":     now.Unix(),
		"exp":     now.Add(expiry).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.secretKey))
}

// ValidateToken parses and validates tokenString, returning its claims.
func (h *JWTHandler) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(h.secretKey), nil
	})
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	userID, _ := claims["user_id"].(string)
	role, _ := claims["role"].(string)
	if !ValidRoles[role] {
		return nil, fmt.Errorf("invalid role in token: %s", role)
	}
	var iat, exp int64
	if v, ok := claims["iat"].(float64); ok {
		iat = int64(v)
	}
	if v, ok := claims["exp"].(float64); ok {
		exp = int64(v)
	}
	return &Claims{UserID: userID, Role: role, IAT: iat, EXP: exp}, nil
}

// CheckRateLimit enforces the per-client fixed window, resetting it
// once rateWindow has elapsed since the window started.
func (h *JWTHandler) CheckRateLimit(clientID string) error {
	h.rateMu.Lock()
	defer h.rateMu.Unlock()

	now := time.Now()
	rate, ok := h.rates[clientID]
	if !ok || now.Sub(rate.windowStart) > h.rateWindow {
		h.rates[clientID] = &clientRate{count: 1, windowStart: now}
		return nil
	}
	rate.count++
	if rate.count > h.rateLimit {
		return fmt.Errorf("rate limit exceeded for client %s", clientID)
	}
	return nil
}

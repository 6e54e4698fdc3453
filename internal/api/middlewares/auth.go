// internal/api/middlewares/auth.go
// JWT 認證中介軟體

package middlewares

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// PermissionStatusRead 讀取發送狀態的權限
const PermissionStatusRead = "status:read"

const tokenIssuer = "mail-dispatch"

// IssueToken 產生狀態 API 使用的 JWT Token
// ttl 為 0 時不設定過期時間
func IssueToken(secret, client string, permissions []string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is empty")
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss":         tokenIssuer,
		"sub":         uuid.New().String(),
		"iat":         now.Unix(),
		"client_id":   client,
		"permissions": permissions,
	}
	if ttl > 0 {
		claims["exp"] = now.Add(ttl).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// JWTAuth JWT 認證中介軟體
// secret 為空時不驗證
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}

		// 取得 Authorization header
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, http.StatusUnauthorized, "missing_token", "Authorization header is required")
			return
		}

		// 解析 Bearer token
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			abort(c, http.StatusUnauthorized, "invalid_token_format", "Authorization header must be Bearer token")
			return
		}

		// 解析 JWT Token
		token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
			// 確認簽名方法
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		}, jwt.WithIssuer(tokenIssuer))

		if err != nil || !token.Valid {
			abort(c, http.StatusUnauthorized, "invalid_token", "Invalid or expired token")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			abort(c, http.StatusUnauthorized, "invalid_claims", "Invalid token claims")
			return
		}

		clientID, ok := claims["client_id"].(string)
		if !ok || clientID == "" {
			abort(c, http.StatusUnauthorized, "invalid_client", "Token missing client_id")
			return
		}

		c.Set("client_id", clientID)
		c.Set("permissions", claims["permissions"])
		c.Set("authenticated", true)

		c.Next()
	}
}

// RequirePermission 權限檢查中介軟體
// 未經過 JWT 驗證 (未設定 secret) 時直接放行
func RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool("authenticated") {
			c.Next()
			return
		}

		permsInterface, exists := c.Get("permissions")
		if !exists {
			abort(c, http.StatusForbidden, "no_permissions", "No permissions found")
			return
		}

		// 轉換權限列表
		var permissions []string
		switch v := permsInterface.(type) {
		case []interface{}:
			for _, p := range v {
				if s, ok := p.(string); ok {
					permissions = append(permissions, s)
				}
			}
		case []string:
			permissions = v
		}

		for _, p := range permissions {
			if p == permission || p == "admin" {
				c.Next()
				return
			}
		}

		abort(c, http.StatusForbidden, "permission_denied", "You don't have permission to access this resource")
	}
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   code,
		"message": message,
	})
}

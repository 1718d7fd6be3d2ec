package middleware

import (
	"bytes"
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
)

// VerifyTimeout bounds one round trip to auth-service.
var VerifyTimeout = 1200 * time.Millisecond

type verifyErrResp struct {
	Error string `json:"error"`
}

type VerifyClaims struct {
	UserID   uint64 `json:"userId"`
	Username string `json:"username"`
	Type     string `json:"type"` // "access"
}

// AuthMiddleware 把 Bearer token 交给 auth-service 校验，只保护管理接口。
// authBaseURL 不带路径，例如 http://localhost:3001。client 为 nil 时使用 http.DefaultClient。
func AuthMiddleware(authBaseURL string, client *http.Client) gin.HandlerFunc {
	if client == nil {
		client = http.DefaultClient
	}
	verifyURL := strings.TrimRight(authBaseURL, "/") + "/v1/auth/verify"

	return func(c *gin.Context) {
		token := extractBearer(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "UNAUTHENTICATED",
				"message": "Authorization header is missing or invalid",
			})
			return
		}

		claims, status, msg := verify(c.Request.Context(), client, verifyURL, token)
		if status != http.StatusOK {
			code := "UNAUTHENTICATED"
			if status == http.StatusBadGateway {
				code = "AUTH_UPSTREAM_ERROR"
			}
			c.AbortWithStatusJSON(status, gin.H{"code": code, "message": msg})
			return
		}

		c.Set("userId", claims.UserID)
		c.Set("username", claims.Username)
		c.Next()
	}
}

func verify(parent context.Context, client *http.Client, verifyURL, token string) (*VerifyClaims, int, string) {
	ctx, cancel := context.WithTimeout(parent, VerifyTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, verifyURL, bytes.NewReader([]byte("{}")))
	if err != nil {
		return nil, http.StatusBadGateway, "build verify request failed"
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		// 包含超时：context deadline exceeded
		log.Printf("middleware: op=verify err=%v", err)
		return nil, http.StatusBadGateway, "auth-service verify failed"
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		var e verifyErrResp
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = "invalid token"
		}
		return nil, http.StatusUnauthorized, e.Error
	default:
		return nil, http.StatusBadGateway, "auth-service verify non-200"
	}

	var claims VerifyClaims
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return nil, http.StatusBadGateway, "invalid verify response"
	}
	if claims.Type != "" && claims.Type != "access" {
		return nil, http.StatusUnauthorized, "access token required"
	}
	return &claims, http.StatusOK, ""
}

// 处理 "Bearer" 前缀（大小写不敏感）
func extractBearer(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

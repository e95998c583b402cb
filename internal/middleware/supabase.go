package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
)

// SupabaseConfig 描述 Supabase 项目的鉴权参数。
type SupabaseConfig struct {
	ProjectURL string
	AnonKey    string
	JWTSecret  string
	HTTPClient *http.Client
}

type headerTransport struct {
	T   http.RoundTripper
	Key string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("apikey", t.Key)
	if t.T == nil {
		return http.DefaultTransport.RoundTrip(req)
	}
	return t.T.RoundTrip(req)
}

type supabaseVerifier struct {
	cfg    SupabaseConfig
	jwks   *keyfunc.JWKS
	client *http.Client
	logger *slog.Logger
}

func newSupabaseVerifier(cfg SupabaseConfig, logger *slog.Logger) *supabaseVerifier {
	v := &supabaseVerifier{cfg: cfg, client: cfg.HTTPClient, logger: logger}
	if v.client == nil {
		v.client = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.ProjectURL == "" || cfg.AnonKey == "" {
		return v
	}

	jwksURL := strings.TrimRight(cfg.ProjectURL, "/") + "/auth/v1/jwks"
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		Client:          &http.Client{Transport: &headerTransport{Key: cfg.AnonKey}, Timeout: 10 * time.Second},
		RefreshInterval: time.Hour,
		RefreshErrorHandler: func(err error) {
			logger.Error("jwks refresh failed", slog.Any("error", err))
		},
	})
	if err != nil {
		logger.Warn("jwks init failed, asymmetric tokens fall back to remote validation",
			slog.String("url", jwksURL), slog.Any("error", err))
		return v
	}
	logger.Info("jwks initialized")
	v.jwks = jwks
	return v
}

// verifyLocally 使用 HMAC 密钥或 JWKS 校验，返回 sub。
func (v *supabaseVerifier) verifyLocally(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); ok && v.cfg.JWTSecret != "" {
			return []byte(v.cfg.JWTSecret), nil
		}
		if v.jwks != nil {
			return v.jwks.Keyfunc(token)
		}
		return nil, fmt.Errorf("no suitable verification method")
	})
	if err != nil {
		return "", err
	}
	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return sub, nil
}

// verifyRemotely 通过调用 Supabase 用户接口验证 Token。
func (v *supabaseVerifier) verifyRemotely(ctx context.Context, token string) (string, error) {
	url := strings.TrimRight(v.cfg.ProjectURL, "/") + "/auth/v1/user"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("apikey", v.cfg.AnonKey)

	resp, err := v.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("remote validation failed with status: %d", resp.StatusCode)
	}

	var user struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return "", fmt.Errorf("decode user: %w", err)
	}
	if user.ID == "" {
		return "", fmt.Errorf("remote user has no id")
	}
	return user.ID, nil
}

// SupabaseAuth 创建 JWT 鉴权中间件。
// 依次尝试 HMAC 密钥、JWKS 公钥，最后回退到 Supabase 用户接口。
func SupabaseAuth(cfg SupabaseConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logger.With(slog.String("component", "supabase_auth"))
	verifier := newSupabaseVerifier(cfg, logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeAuthError(w, http.StatusUnauthorized, "missing Authorization header")
				return
			}

			const prefix = "Bearer "
			if !strings.HasPrefix(authHeader, prefix) {
				writeAuthError(w, http.StatusUnauthorized, "invalid Authorization format, expected: Bearer <token>")
				return
			}

			tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
			if tokenString == "" {
				writeAuthError(w, http.StatusUnauthorized, "empty token")
				return
			}

			userID, err := verifier.verifyLocally(tokenString)
			if err != nil {
				logger.Debug("local token validation failed", slog.Any("error", err))
				if cfg.ProjectURL == "" || cfg.AnonKey == "" {
					writeAuthError(w, http.StatusUnauthorized, "invalid token")
					return
				}
				userID, err = verifier.verifyRemotely(r.Context(), tokenString)
				if err != nil {
					logger.Warn("remote token validation failed", slog.Any("error", err))
					writeAuthError(w, http.StatusUnauthorized, "invalid token (remote)")
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(WithOwnerID(r.Context(), userID)))
		})
	}
}

package storage

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken 表示下载令牌无效、过期或与对象键不匹配。
var ErrInvalidToken = errors.New("storage: invalid download token")

// URLSigner 为没有原生预签名能力的驱动签发 {baseURL}/blobs/{key}?token= 形式的地址。
type URLSigner struct {
	baseURL string
	secret  []byte
	now     func() time.Time
}

// BlobClaims 是下载令牌的载荷，Subject 为对象键。
type BlobClaims struct {
	Filename string `json:"fn,omitempty"`
	jwt.RegisteredClaims
}

// NewURLSigner 创建签名器。secret 不能为空。
func NewURLSigner(baseURL, secret string) (*URLSigner, error) {
	if secret == "" {
		return nil, fmt.Errorf("blob signing secret is empty")
	}
	return &URLSigner{baseURL: strings.TrimRight(baseURL, "/"), secret: []byte(secret), now: time.Now}, nil
}

// Sign 返回对象的签名下载地址。
func (s *URLSigner) Sign(key, filename string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := BlobClaims{
		Filename: filename,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   key,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign blob token: %w", err)
	}

	escaped := make([]string, 0, strings.Count(key, "/")+1)
	for _, seg := range strings.Split(key, "/") {
		escaped = append(escaped, url.PathEscape(seg))
	}
	return s.baseURL + "/blobs/" + strings.Join(escaped, "/") + "?token=" + url.QueryEscape(token), nil
}

// Verify 校验令牌并确认它签发给 key。
func (s *URLSigner) Verify(key, token string) (*BlobClaims, error) {
	claims := &BlobClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject != key {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Package password 负责分享密码的哈希与校验。
//
// 新哈希按配置使用 argon2id 或 bcrypt，校验时根据哈希前缀自动识别算法，
// 因此切换算法后旧哈希仍可校验。
package password

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alexedwards/argon2id"
	"golang.org/x/crypto/bcrypt"
)

const (
	AlgorithmArgon2id = "argon2id"
	AlgorithmBcrypt   = "bcrypt"
)

// bcryptMaxBytes 是 bcrypt 能处理的最大密码字节数。
const bcryptMaxBytes = 72

// ErrUnknownHash 表示哈希格式无法识别。
var ErrUnknownHash = errors.New("password: unknown hash format")

// Hasher 生成并校验密码哈希，零值不可用。
type Hasher struct {
	algorithm  string
	params     *argon2id.Params
	bcryptCost int
}

// New 按算法名创建 Hasher，空字符串视为 argon2id。
func New(algorithm string) (*Hasher, error) {
	switch strings.ToLower(algorithm) {
	case "", AlgorithmArgon2id:
		return &Hasher{algorithm: AlgorithmArgon2id, params: argon2id.DefaultParams, bcryptCost: bcrypt.DefaultCost}, nil
	case AlgorithmBcrypt:
		return &Hasher{algorithm: AlgorithmBcrypt, params: argon2id.DefaultParams, bcryptCost: bcrypt.DefaultCost}, nil
	default:
		return nil, fmt.Errorf("unsupported password algorithm %q", algorithm)
	}
}

// NewDefault 返回使用 argon2id 默认参数的 Hasher。
func NewDefault() *Hasher {
	h, _ := New(AlgorithmArgon2id)
	return h
}

// Algorithm 返回新哈希使用的算法。
func (h *Hasher) Algorithm() string { return h.algorithm }

// MaxBytes 返回新哈希可接受的最大密码字节数，0 表示不限。
func (h *Hasher) MaxBytes() int {
	if h.algorithm == AlgorithmBcrypt {
		return bcryptMaxBytes
	}
	return 0
}

// Hash 返回可直接落库的编码哈希，每次调用使用新的随机盐。
func (h *Hasher) Hash(plain string) (string, error) {
	if h.algorithm == AlgorithmBcrypt {
		out, err := bcrypt.GenerateFromPassword([]byte(plain), h.bcryptCost)
		if err != nil {
			return "", fmt.Errorf("bcrypt hash: %w", err)
		}
		return string(out), nil
	}
	out, err := argon2id.CreateHash(plain, h.params)
	if err != nil {
		return "", fmt.Errorf("argon2id hash: %w", err)
	}
	return out, nil
}

// Verify 比较明文与哈希。不匹配返回 (false, nil)，格式错误返回 error。
func (h *Hasher) Verify(plain, encoded string) (bool, error) {
	switch {
	case strings.HasPrefix(encoded, "$argon2id$"):
		return argon2id.ComparePasswordAndHash(plain, encoded)
	case strings.HasPrefix(encoded, "$2"):
		err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(plain))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, ErrUnknownHash
	}
}

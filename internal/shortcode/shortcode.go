// Package shortcode 生成分享短码。
//
// 短码由 crypto/rand 产生的随机数经 sqids 编码而来，只包含 URL 安全字符。
// 唯一性不在这里保证，由存储层唯一约束兜底，调用方冲突后重试。
package shortcode

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/sqids/sqids-go"
)

const (
	DefaultMinLength = 7
	// 随机数取 40 位，编码后约 7 个字符
	randomBits = 40
)

// Generator 生成随机短码，可并发使用。
type Generator struct {
	enc *sqids.Sqids
}

// New 创建生成器，minLength 为编码结果的最小长度。
func New(minLength int) (*Generator, error) {
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	if minLength > 255 {
		return nil, fmt.Errorf("short code min length %d out of range", minLength)
	}
	enc, err := sqids.New(sqids.Options{MinLength: uint8(minLength)})
	if err != nil {
		return nil, fmt.Errorf("初始化 sqids 编码器失败: %w", err)
	}
	return &Generator{enc: enc}, nil
}

// Generate 返回一个新的随机短码。
func (g *Generator) Generate() (string, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	n := binary.BigEndian.Uint64(buf[:]) & (1<<randomBits - 1)

	code, err := g.enc.Encode([]uint64{n})
	if err != nil {
		return "", fmt.Errorf("encode short code: %w", err)
	}
	return code, nil
}

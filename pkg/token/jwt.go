// Package token 签发和校验访问对话记录 API 的 JWT。
// 服务只有一个所有者，因此令牌没有用户 id，只区分授权范围。
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// Issuer 写入每个令牌的 iss。
	Issuer = "aihistory"
	// OwnerSubject 是单用户模式下唯一的令牌主体。
	OwnerSubject = "owner"
	// ScopeDialogues 允许读写对话记录。
	ScopeDialogues = "dialogues"
)

// ErrInvalidToken 是所有校验失败的根错误。
var ErrInvalidToken = errors.New("invalid token")

// JWTManager 负责管理 JWT 的生成和验证。
type JWTManager struct {
	secretKey []byte
	tokenDur  time.Duration
	parser    *jwt.Parser
}

// Claims 是令牌中携带的声明。
type Claims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// NewJWTManager 创建一个新的 JWTManager 实例，expireHours 为令牌有效期（小时）。
func NewJWTManager(secret string, expireHours int) *JWTManager {
	return &JWTManager{
		secretKey: []byte(secret),
		tokenDur:  time.Hour * time.Duration(expireHours),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(Issuer),
			jwt.WithSubject(OwnerSubject),
			jwt.WithExpirationRequired(),
		),
	}
}

// GenerateToken 为记录的所有者签发一个新的 access token。
func (m *JWTManager) GenerateToken(scope string) (string, error) {
	now := time.Now()
	claims := Claims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   OwnerSubject,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenDur)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secretKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken 校验签名、签发者、主体和有效期，返回令牌中的声明。
func (m *JWTManager) VerifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if _, err := m.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return m.secretKey, nil
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

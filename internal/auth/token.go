package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenIssuerName はベアラートークンのissクレームに設定する値。
const TokenIssuerName = "infomate"

// resetSecretBytes はリセットシークレットのバイト長。
const resetSecretBytes = 32

// ErrInvalidToken はベアラートークンの検証に失敗したことを示す。
var ErrInvalidToken = errors.New("invalid bearer token")

// Claims はベアラートークンに埋め込むクレーム。
type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// TokenIssuer はHS256署名のベアラートークンを発行・検証する。
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer はTokenIssuerを生成する。
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret: []byte(secret),
		issuer: TokenIssuerName,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Mint はユーザーIDを埋め込んだトークンと有効期限を返す。
func (t *TokenIssuer) Mint(userID string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, fmt.Errorf("failed to mint token: user ID is required")
	}

	now := t.now()
	expiresAt := now.Add(t.ttl)
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify は署名、発行者、有効期限を検証してクレームを返す。
// 検証に失敗した場合はErrInvalidTokenをラップしたエラーを返す。
func (t *TokenIssuer) Verify(token string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)

	parsed, err := parser.ParseWithClaims(token, &Claims{}, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing userId claim", ErrInvalidToken)
	}
	return claims, nil
}

// NewResetSecret はパスワードリセット用のランダムなシークレットとそのハッシュを生成する。
// シークレットはメールで送信し、ハッシュのみを保存する。
func NewResetSecret() (secret, hash string, err error) {
	b := make([]byte, resetSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("failed to generate reset secret: %w", err)
	}
	secret = hex.EncodeToString(b)
	return secret, HashResetSecret(secret), nil
}

// HashResetSecret はリセットシークレットのSHA-256ハッシュを16進文字列で返す。
func HashResetSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

package security

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultPasswordCost はbcryptのデフォルトコスト。
const DefaultPasswordCost = 10

// MaxPasswordBytes はbcryptが扱えるパスワードの最大バイト数。
const MaxPasswordBytes = 72

// dummyPassword は存在しないユーザーの照合に使用する固定パスワード。
const dummyPassword = "infomate-dummy-password"

// PasswordHasherService はパスワードのハッシュ化と照合のインターフェースを定義する。
type PasswordHasherService interface {
	// Hash はランダムソルト付きのハッシュを返す。
	Hash(secret string) (string, error)
	// Verify はsecretがhashと一致するかを返す。
	Verify(secret, hash string) bool
	// VerifyDummy は固定ハッシュに対して照合を行い常にfalseを返す。
	// 未登録メールアドレスでのログイン時に、誤ったパスワードと同じ処理時間をかけるために使用する。
	VerifyDummy(secret string)
}

// PasswordHasher はbcryptによるPasswordHasherServiceの実装。
type PasswordHasher struct {
	cost      int
	dummyHash []byte
}

// NewPasswordHasher はPasswordHasherを生成する。
// costがbcryptの許容範囲外の場合はDefaultPasswordCostを使用する。
func NewPasswordHasher(cost int) (*PasswordHasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultPasswordCost
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte(dummyPassword), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy hash: %w", err)
	}
	return &PasswordHasher{cost: cost, dummyHash: dummy}, nil
}

// Hash はsecretのbcryptハッシュを返す。
func (h *PasswordHasher) Hash(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Verify はsecretがhashと一致する場合にtrueを返す。
func (h *PasswordHasher) Verify(secret, hash string) bool {
	if hash == "" {
		h.VerifyDummy(secret)
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// VerifyDummy は固定ハッシュに対して照合を行う。
func (h *PasswordHasher) VerifyDummy(secret string) {
	_ = bcrypt.CompareHashAndPassword(h.dummyHash, []byte(secret))
}

// compile-time interface check
var _ PasswordHasherService = (*PasswordHasher)(nil)

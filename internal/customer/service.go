// Package customer は顧客レコード管理のドメインロジックを提供する。
// すべての操作は呼び出し元ユーザーIDを所有者条件として受け取り、
// 他ユーザーのレコードは存在しないものとして扱う。
package customer

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/infomate/internal/model"
	"github.com/hitoshi/infomate/internal/repository"
	"github.com/hitoshi/infomate/internal/security"
	"github.com/hitoshi/infomate/internal/validation"
)

// 年齢として受け付ける範囲。
const (
	MinAge = 0
	MaxAge = 150
)

// Input はフォームから受け取る顧客レコードの入力値。
// 所有ユーザーIDは含まず、常に呼び出し元のIDが使われる。
type Input struct {
	FirstName   string
	LastName    string
	Email       string
	PhoneNumber string
	Age         string
	Country     string
	Gender      string
}

// Service は顧客レコードのサービス層。
type Service struct {
	repo      repository.CustomerRepository
	sanitizer security.TextSanitizerService
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.CustomerRepository, sanitizer security.TextSanitizerService) *Service {
	return &Service{
		repo:      repo,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// List は所有ユーザーの顧客レコードを新しい順に返す。
func (s *Service) List(ctx context.Context, ownerID string) ([]*model.Customer, error) {
	customers, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("顧客一覧の取得に失敗しました: %w", err)
	}
	return customers, nil
}

// Create は顧客レコードを作成する。所有ユーザーIDは常にownerIDで上書きする。
func (s *Service) Create(ctx context.Context, ownerID string, in Input) (*model.Customer, error) {
	c, err := s.build(in)
	if err != nil {
		return nil, err
	}

	now := s.now()
	c.ID = uuid.NewString()
	c.UserID = ownerID
	c.CreatedAt = now
	c.UpdatedAt = now

	if err := s.repo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("顧客レコードの作成に失敗しました: %w", err)
	}
	return c, nil
}

// Get はIDと所有ユーザーIDが一致するレコードを返す。
// 存在しない場合と他ユーザーのレコードの場合は同じRECORD_NOT_FOUNDを返す。
func (s *Service) Get(ctx context.Context, ownerID, id string) (*model.Customer, error) {
	if !validRecordID(id) {
		return nil, model.NewRecordNotFoundError()
	}

	c, err := s.repo.FindByIDAndOwner(ctx, id, ownerID)
	if err != nil {
		return nil, fmt.Errorf("顧客レコードの取得に失敗しました: %w", err)
	}
	if c == nil {
		return nil, model.NewRecordNotFoundError()
	}
	return c, nil
}

// Update はIDと所有ユーザーIDが一致するレコードを更新する。
func (s *Service) Update(ctx context.Context, ownerID, id string, in Input) (*model.Customer, error) {
	if !validRecordID(id) {
		return nil, model.NewRecordNotFoundError()
	}

	c, err := s.build(in)
	if err != nil {
		return nil, err
	}
	c.ID = id
	c.UserID = ownerID
	c.UpdatedAt = s.now()

	updated, err := s.repo.UpdateByIDAndOwner(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("顧客レコードの更新に失敗しました: %w", err)
	}
	if !updated {
		return nil, model.NewRecordNotFoundError()
	}
	return c, nil
}

// Delete はIDと所有ユーザーIDが一致するレコードを削除する。
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	if !validRecordID(id) {
		return model.NewRecordNotFoundError()
	}

	deleted, err := s.repo.DeleteByIDAndOwner(ctx, id, ownerID)
	if err != nil {
		return fmt.Errorf("顧客レコードの削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewRecordNotFoundError()
	}
	return nil
}

// Search は姓または名に検索文字列を含む所有ユーザーのレコードを返す。
// 空の検索文字列は空の結果になる。
func (s *Service) Search(ctx context.Context, ownerID, text string) ([]*model.Customer, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return []*model.Customer{}, nil
	}

	customers, err := s.repo.SearchByName(ctx, ownerID, text)
	if err != nil {
		return nil, fmt.Errorf("顧客レコードの検索に失敗しました: %w", err)
	}
	return customers, nil
}

// build は入力値を整形・検証してCustomerを組み立てる。
func (s *Service) build(in Input) (*model.Customer, error) {
	c := &model.Customer{
		FirstName:   s.sanitizer.Clean(in.FirstName),
		LastName:    s.sanitizer.Clean(in.LastName),
		Email:       strings.TrimSpace(in.Email),
		PhoneNumber: s.sanitizer.Clean(in.PhoneNumber),
		Country:     s.sanitizer.Clean(in.Country),
		Gender:      strings.TrimSpace(in.Gender),
	}

	var v validation.Collector
	v.Require("名", c.FirstName)
	v.Require("姓", c.LastName)
	v.Email(c.Email)
	v.Require("電話番号", c.PhoneNumber)
	v.Require("国", c.Country)

	age, err := strconv.Atoi(strings.TrimSpace(in.Age))
	v.Check(err == nil && age >= MinAge && age <= MaxAge,
		fmt.Sprintf("年齢は%dから%dの整数で入力してください", MinAge, MaxAge))
	c.Age = age

	v.Check(c.Gender == model.GenderMale || c.Gender == model.GenderFemale,
		"性別を選択してください")

	if err := v.Err(); err != nil {
		return nil, err
	}
	return c, nil
}

// validRecordID はレコードIDがUUID形式かを判定する。
// 形式不正のIDはDBに問い合わせずに未検出として扱う。
func validRecordID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

package model

import "time"

// 顧客レコードの性別として許可される値。
const (
	GenderMale   = "Male"
	GenderFemale = "Female"
)

// Customer はユーザーが管理する顧客レコードを表す。
// UserIDは所有ユーザーを示し、作成後に変更されない。
type Customer struct {
	ID          string
	UserID      string
	FirstName   string
	LastName    string
	Email       string
	PhoneNumber string
	Age         int
	Country     string
	Gender      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FullName は表示用の氏名を返す。
func (c *Customer) FullName() string {
	return c.FirstName + " " + c.LastName
}

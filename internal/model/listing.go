// Package model はドメインモデルを定義する。
package model

import (
	"encoding/json"
	"strconv"
)

// Kind は物件カテゴリ（建物または土地）を表す。
type Kind string

const (
	KindBuilding Kind = "building"
	KindLand     Kind = "land"
)

// Valid はKindが既知の値かどうかを返す。
func (k Kind) Valid() bool {
	return k == KindBuilding || k == KindLand
}

// Price は価格を表す。
// バックエンドは10進数を文字列で返す場合と数値で返す場合があるため、
// どちらも受け付けて文字列表現のまま保持する。
type Price string

// UnmarshalJSON は文字列・数値・nullのいずれも受け付ける。
func (p *Price) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*p = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*p = Price(s)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return err
	}
	*p = Price(num.String())
	return nil
}

// Float は価格を数値として返す。解釈できない場合はfalseを返す。
func (p Price) Float() (float64, bool) {
	f, err := strconv.ParseFloat(string(p), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Owner は物件の掲載者を表す。
type Owner struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email"`
}

// Building は建物物件を表す。
type Building struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	Price             Price  `json:"price"`
	Currency          string `json:"currency"`
	Country           string `json:"country"`
	Description       string `json:"description"`
	DatePosted        string `json:"date_posted"`
	Owner             *Owner `json:"property_owner"`
	Image             string `json:"image"`
	PropertyType      string `json:"property_type"`
	BuildingType      string `json:"building_type"`
	Condition         string `json:"condition"`
	Furnishing        string `json:"furnishing"`
	Bedrooms          int    `json:"bedrooms"`
	Bathrooms         int    `json:"bathrooms"`
	Toilets           int    `json:"toilets"`
	SwimmingPool      bool   `json:"swimming_pool"`
	HighspeedInternet bool   `json:"highspeed_internet"`
	Gym               bool   `json:"gym"`
	Dishwasher        bool   `json:"dishwasher"`
	Wifi              bool   `json:"wifi"`
	Garage            bool   `json:"garage"`
}

// Land は土地物件を表す。
type Land struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Price       Price  `json:"price"`
	Currency    string `json:"currency"`
	Country     string `json:"country"`
	Description string `json:"description"`
	DatePosted  string `json:"date_posted"`
	Owner       *Owner `json:"owner"`
	Image       string `json:"image"`
	LandType    string `json:"land_type"`
}

// ListingImage は物件に紐づく画像を表す。
// ListingIDは所属する物件のIDを指す外部キー。
type ListingImage struct {
	ID        int64
	ListingID int64
	Image     string
}

// SavedListing はユーザーのお気に入り登録（ユーザーと物件の結合レコード）を表す。
type SavedListing struct {
	ID        int64
	Kind      Kind
	UserID    int64
	ListingID int64
}

// Category はデモ用のカテゴリを表す。
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

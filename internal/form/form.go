// Package form は掲載・登録フォームの入力値と送信フローを提供する。
//
// 入力チェックは必須項目と選択肢の範囲のみで、数値範囲などの項目間チェックは行わない。
package form

import (
	"strings"

	"github.com/hitoshi/estate/internal/model"
)

// Choice は選択式項目の1選択肢。
type Choice struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// PropertyTypes は建物の取引種別の選択肢。
var PropertyTypes = []Choice{
	{Value: "sale", Label: "For Sale"},
	{Value: "rent", Label: "For Rent"},
	{Value: "lease", Label: "For Lease"},
}

// BuildingTypes は建物種別の選択肢。
var BuildingTypes = []Choice{
	{Value: "apartment", Label: "Apartment"},
	{Value: "flats", Label: "Flats"},
	{Value: "villa", Label: "Villa"},
	{Value: "bungalow", Label: "Bungalow"},
	{Value: "penthouse", Label: "Penthouse"},
	{Value: "room_and_parlour", Label: "Room and Parlour"},
	{Value: "duplex", Label: "Duplex"},
	{Value: "townhouse_terrace", Label: "Townhouse / Terrace"},
	{Value: "shared_apartments", Label: "Shared Apartments"},
}

// Conditions は建物の状態の選択肢。
var Conditions = []Choice{
	{Value: "old", Label: "Old"},
	{Value: "newly_built", Label: "Newly Built"},
	{Value: "renovated", Label: "Renovated"},
}

// Furnishings は家具の有無の選択肢。
var Furnishings = []Choice{
	{Value: "fully_furnished", Label: "Fully Furnished"},
	{Value: "unfurnished", Label: "Unfurnished"},
	{Value: "semi_furnished", Label: "Semi Furnished"},
}

// BuildingChoices は建物掲載フォームの選択肢一覧。
type BuildingChoices struct {
	PropertyTypes []Choice `json:"property_types"`
	BuildingTypes []Choice `json:"building_types"`
	Conditions    []Choice `json:"conditions"`
	Furnishings   []Choice `json:"furnishings"`
}

// Choices は建物掲載フォームの選択肢を返す。
func Choices() BuildingChoices {
	return BuildingChoices{
		PropertyTypes: PropertyTypes,
		BuildingTypes: BuildingTypes,
		Conditions:    Conditions,
		Furnishings:   Furnishings,
	}
}

func contains(choices []Choice, v string) bool {
	for _, c := range choices {
		if c.Value == v {
			return true
		}
	}
	return false
}

// messages は項目名をキーとしたインライン表示用のメッセージ。
type messages map[string]string

func (m messages) required(field, value string) {
	if strings.TrimSpace(value) == "" {
		m[field] = "必須項目です"
	}
}

func (m messages) choice(field, value string, choices []Choice) {
	if value != "" && !contains(choices, value) {
		m[field] = "選択肢にない値です"
	}
}

func (m messages) err() error {
	if len(m) == 0 {
		return nil
	}
	return model.NewValidationError(m)
}

// BuildingForm は建物掲載フォームの入力値。
type BuildingForm struct {
	Name              string            `json:"name"`
	Price             string            `json:"price"`
	PropertyType      string            `json:"property_type"`
	BuildingType      string            `json:"building_type"`
	Condition         string            `json:"condition"`
	Furnishing        string            `json:"furnishing"`
	Bedrooms          int               `json:"bedrooms"`
	Bathrooms         int               `json:"bathrooms"`
	Toilets           int               `json:"toilets"`
	SwimmingPool      bool              `json:"swimming_pool"`
	HighspeedInternet bool              `json:"highspeed_internet"`
	Gym               bool              `json:"gym"`
	Dishwasher        bool              `json:"dishwasher"`
	Wifi              bool              `json:"wifi"`
	Garage            bool              `json:"garage"`
	Image             *model.Attachment `json:"-"`
}

// Validate は必須項目（name, price）と選択肢を検証する。
func (f BuildingForm) Validate() error {
	m := messages{}
	m.required("name", f.Name)
	m.required("price", f.Price)
	m.choice("property_type", f.PropertyType, PropertyTypes)
	m.choice("building_type", f.BuildingType, BuildingTypes)
	m.choice("condition", f.Condition, Conditions)
	m.choice("furnishing", f.Furnishing, Furnishings)
	return m.err()
}

// LandForm は土地掲載フォームの入力値。
type LandForm struct {
	Name        string            `json:"name"`
	Price       string            `json:"price"`
	Description string            `json:"description"`
	Image       *model.Attachment `json:"-"`
}

// Validate は必須項目（name, price）を検証する。
func (f LandForm) Validate() error {
	m := messages{}
	m.required("name", f.Name)
	m.required("price", f.Price)
	return m.err()
}

// RegistrationForm はユーザー登録フォームの入力値。
type RegistrationForm struct {
	Username    string            `json:"username"`
	Password    string            `json:"password"`
	FirstName   string            `json:"first_name"`
	LastName    string            `json:"last_name"`
	Email       string            `json:"email"`
	PhoneNumber string            `json:"phone_number"`
	About       string            `json:"about"`
	Country     string            `json:"country"`
	ProfilePic  *model.Attachment `json:"-"`
}

// Validate は全項目の入力を検証する。プロフィール画像は任意。
func (f RegistrationForm) Validate() error {
	m := messages{}
	m.required("username", f.Username)
	m.required("password", f.Password)
	m.required("first_name", f.FirstName)
	m.required("last_name", f.LastName)
	m.required("email", f.Email)
	m.required("phone_number", f.PhoneNumber)
	m.required("about", f.About)
	m.required("country", f.Country)
	return m.err()
}

package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, listing, upstream, system
	Action   string // ユーザー向け対処方法
	// Details はバックエンドが返した構造化エラー詳細（フィールド別エラー等）。
	Details any
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation       = "VALIDATION_FAILED"
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
	ErrCodeInvalidKind      = "INVALID_KIND"
	ErrCodeSearchDisabled   = "SEARCH_DISABLED"
	ErrCodeLoginRequired    = "LOGIN_REQUIRED"
	ErrCodeLoginFailed      = "LOGIN_FAILED"
	ErrCodeAlreadySaved     = "ALREADY_SAVED"
	ErrCodeSubmissionFailed = "SUBMISSION_FAILED"
	ErrCodeUpstream         = "UPSTREAM_ERROR"
	ErrCodeListingNotFound  = "LISTING_NOT_FOUND"
	ErrCodeSessionNotFound  = "SESSION_NOT_FOUND"
)

// NewValidationError は必須項目未入力などの入力検証エラーを生成する。
// fieldsにはフィールド名ごとのインラインメッセージを渡す。
func NewValidationError(fields map[string]string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  "入力内容に不備があります。",
		Category: "validation",
		Action:   "必須項目を入力してください。",
		Details:  fields,
	}
}

// NewInvalidKindError は未知の物件カテゴリが指定された場合のエラーを生成する。
func NewInvalidKindError(kind string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidKind,
		Message:  fmt.Sprintf("無効なカテゴリです: %s", kind),
		Category: "validation",
		Action:   "カテゴリには building または land を指定してください。",
	}
}

// NewSearchDisabledError は検索条件が1つも入力されていない場合のエラーを生成する。
func NewSearchDisabledError() *APIError {
	return &APIError{
		Code:     ErrCodeSearchDisabled,
		Message:  "検索条件が入力されていません。",
		Category: "validation",
		Action:   "名前、価格、国のいずれかを入力してください。",
	}
}

// NewLoginRequiredError はログインが必要な操作を未認証で行った場合のエラーを生成する。
func NewLoginRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeLoginRequired,
		Message:  "ログインが必要です。",
		Category: "auth",
		Action:   "ログインしてから再度お試しください。",
	}
}

// NewLoginFailedError はバックエンドでのログインに失敗した場合のエラーを生成する。
func NewLoginFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeLoginFailed,
		Message:  "ログインに失敗しました。",
		Category: "auth",
		Action:   "ユーザー名とパスワードを確認してください。",
	}
}

// NewAlreadySavedError は既にお気に入り登録済みの物件を再登録しようとした場合のエラーを生成する。
func NewAlreadySavedError(kind Kind, listingID string) *APIError {
	return &APIError{
		Code:     ErrCodeAlreadySaved,
		Message:  fmt.Sprintf("この物件は既に保存されています: %s/%s", kind, listingID),
		Category: "listing",
		Action:   "保存済み一覧から確認してください。",
	}
}

// NewSubmissionFailedError はフォーム送信の失敗を表すエラーを生成する。
// detailsにはバックエンドが返したエラー詳細を渡す（無い場合はnil）。
func NewSubmissionFailedError(details any) *APIError {
	return &APIError{
		Code:     ErrCodeSubmissionFailed,
		Message:  "予期しないエラーが発生しました。もう一度お試しください。",
		Category: "validation",
		Action:   "入力内容を確認して再度送信してください。",
		Details:  details,
	}
}

// NewUpstreamError はバックエンドAPIの呼び出し失敗を表すエラーを生成する。
func NewUpstreamError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeUpstream,
		Message:  fmt.Sprintf("物件APIの呼び出しに失敗しました: %s", reason),
		Category: "upstream",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewListingNotFoundError は物件が見つからない場合のエラーを生成する。
func NewListingNotFoundError(kind Kind, id string) *APIError {
	return &APIError{
		Code:     ErrCodeListingNotFound,
		Message:  fmt.Sprintf("指定された物件が見つかりません: %s/%s", kind, id),
		Category: "listing",
		Action:   "一覧画面から物件を選び直してください。",
	}
}

// NewInvalidRequestError はリクエストの形式が不正な場合のエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "リクエスト内容を確認してください。",
	}
}

// NewSessionNotFoundError はセッションが見つからない場合のエラーを生成する。
func NewSessionNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionNotFound,
		Message:  "セッションが見つかりません。",
		Category: "auth",
		Action:   "ページを再読み込みしてください。",
	}
}

package security

import (
	"net/url"
	"strings"
)

// ImageURLResolver は物件APIが返す画像パスを表示可能なURLに変換する。
// 相対パスはAPIのベースURLで解決し、http/https以外のスキームは破棄する。
type ImageURLResolver struct {
	base *url.URL
}

// NewImageURLResolver はImageURLResolverを生成する。
// baseURLが不正な場合は相対パスを解決せず破棄する。
func NewImageURLResolver(baseURL string) *ImageURLResolver {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return &ImageURLResolver{}
	}
	return &ImageURLResolver{base: u}
}

// Resolve は画像パスを絶対URLに変換する。表示できない場合は空文字列を返す。
func (r *ImageURLResolver) Resolve(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if u.IsAbs() {
		if u.Scheme != "http" && u.Scheme != "https" {
			return ""
		}
		if u.Host == "" {
			return ""
		}
		return u.String()
	}
	// プロトコル相対URL（//host/path）は受け付けない
	if u.Host != "" || r.base == nil {
		return ""
	}
	return r.base.ResolveReference(u).String()
}

// ResolveAll は画像パスの列を変換する。表示できないものは除外し、結果は非nilを返す。
func (r *ImageURLResolver) ResolveAll(raws []string) []string {
	out := make([]string, 0, len(raws))
	for _, raw := range raws {
		if u := r.Resolve(raw); u != "" {
			out = append(out, u)
		}
	}
	return out
}

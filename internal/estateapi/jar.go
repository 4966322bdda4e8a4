package estateapi

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/hitoshi/estate/internal/model"
)

// sessionJar はcookiejarに委譲しつつ、セッション保存用にCookieの属性を記録する。
// cookiejar.Jar.Cookiesは名前と値しか返さないため、PathとDomainはここで保持する。
type sessionJar struct {
	jar *cookiejar.Jar
	now func() time.Time

	mu      sync.Mutex
	entries map[jarKey]jarEntry
}

type jarKey struct {
	name   string
	domain string
	path   string
}

type jarEntry struct {
	cookie  model.UpstreamCookie
	expires time.Time // ゼロ値はブラウザセッション限りのCookie
}

func newJar() (*sessionJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("Cookie jarの生成に失敗しました: %w", err)
	}
	return &sessionJar{jar: jar, now: time.Now, entries: map[jarKey]jarEntry{}}, nil
}

// SetCookies はhttp.CookieJarの実装。
func (j *sessionJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.jar.SetCookies(u, cookies)

	now := j.now()
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, ck := range cookies {
		path := ck.Path
		if path == "" || path[0] != '/' {
			path = defaultCookiePath(u.Path)
		}
		domain := strings.TrimPrefix(strings.ToLower(ck.Domain), ".")
		key := jarKey{name: ck.Name, domain: domain, path: path}

		if ck.MaxAge < 0 || (!ck.Expires.IsZero() && !ck.Expires.After(now)) {
			delete(j.entries, key)
			continue
		}
		var expires time.Time
		switch {
		case ck.MaxAge > 0:
			expires = now.Add(time.Duration(ck.MaxAge) * time.Second)
		case !ck.Expires.IsZero():
			expires = ck.Expires
		}
		j.entries[key] = jarEntry{
			cookie:  model.UpstreamCookie{Name: ck.Name, Value: ck.Value, Path: path, Domain: domain},
			expires: expires,
		}
	}
}

// Cookies はhttp.CookieJarの実装。
func (j *sessionJar) Cookies(u *url.URL) []*http.Cookie {
	return j.jar.Cookies(u)
}

// export は期限内のCookieを名前・ドメイン・パスの順で返す。
func (j *sessionJar) export() []model.UpstreamCookie {
	now := j.now()
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]model.UpstreamCookie, 0, len(j.entries))
	for key, e := range j.entries {
		if !e.expires.IsZero() && !e.expires.After(now) {
			delete(j.entries, key)
			continue
		}
		out = append(out, e.cookie)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Name != out[b].Name {
			return out[a].Name < out[b].Name
		}
		if out[a].Domain != out[b].Domain {
			return out[a].Domain < out[b].Domain
		}
		return out[a].Path < out[b].Path
	})
	return out
}

// defaultCookiePath はPath属性が無い場合のパス（リクエストパスのディレクトリ部分）を返す。
func defaultCookiePath(requestPath string) string {
	if requestPath == "" || requestPath[0] != '/' {
		return "/"
	}
	i := strings.LastIndex(requestPath, "/")
	if i == 0 {
		return "/"
	}
	return requestPath[:i]
}

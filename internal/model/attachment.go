package model

import (
	"mime"
	"path/filepath"
	"strings"
)

// DefaultImageType は拡張子から画像種別を判定できない場合のMIMEタイプ。
const DefaultImageType = "image/jpeg"

// Attachment はフォームに添付する画像ファイルを表す。
type Attachment struct {
	FileName    string
	ContentType string
	Data        []byte
}

// FileNameFromURI は端末上のファイルURIから元のファイル名を推定する。
// 例: file:///data/user/0/cache/IMG_0001.png → IMG_0001.png
func FileNameFromURI(uri string) string {
	if i := strings.IndexAny(uri, "?#"); i >= 0 {
		uri = uri[:i]
	}
	uri = strings.TrimRight(uri, "/")
	if i := strings.LastIndex(uri, "/"); i >= 0 {
		uri = uri[i+1:]
	}
	return uri
}

// ImageContentType はファイル名の拡張子から画像のMIMEタイプを返す。
// 画像以外・不明な拡張子の場合はimage/jpegとする。
func ImageContentType(fileName string) string {
	ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(fileName)))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = ct[:i]
	}
	if !strings.HasPrefix(ct, "image/") {
		return DefaultImageType
	}
	return ct
}

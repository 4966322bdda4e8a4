package estateapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"sort"
	"strings"

	"github.com/hitoshi/estate/internal/model"
)

// encodeMultipart はpayloadのJSONフィールドをテキストパートとして書き出し、
// fileがnilでなければfieldNameのファイルパートを追加する。
func encodeMultipart(payload any, fieldName string, file *model.Attachment) (io.Reader, string, error) {
	fields, err := flattenFields(payload)
	if err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := w.WriteField(k, fields[k]); err != nil {
			return nil, "", fmt.Errorf("multipartフィールドの書き込みに失敗しました: %w", err)
		}
	}

	if file != nil {
		contentType := file.ContentType
		if contentType == "" {
			contentType = model.ImageContentType(file.FileName)
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			escapeQuotes(fieldName), escapeQuotes(file.FileName)))
		h.Set("Content-Type", contentType)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("multipartファイルパートの作成に失敗しました: %w", err)
		}
		if _, err := part.Write(file.Data); err != nil {
			return nil, "", fmt.Errorf("multipartファイルパートの書き込みに失敗しました: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("multipartボディの生成に失敗しました: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// flattenFields はJSONタグに従ってpayloadを文字列フィールドに展開する。
func flattenFields(payload any) (map[string]string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ペイロードのエンコードに失敗しました: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("ペイロードのデコードに失敗しました: %w", err)
	}
	fields := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		fields[k] = fmt.Sprint(v)
	}
	return fields, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

package fetch

import (
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/htmlindex"
)

// decodeToUTF8 converts a response body to UTF-8 and reports the charset it was decoded from.
// Provider pages still ship GBK/GB2312, so the Content-Type label and the <meta> prescan both count.
// Undecodable input is returned unchanged.
func decodeToUTF8(body []byte, contentType string) ([]byte, string) {
	if len(body) == 0 {
		return body, "utf-8"
	}

	enc, name, _ := charset.DetermineEncoding(body, contentType)
	if canonical, err := htmlindex.Name(enc); err == nil {
		name = canonical
	}
	if isUTF8(name) {
		return body, "utf-8"
	}

	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return body, name
	}
	return decoded, name
}

func isUTF8(name string) bool {
	switch strings.ToLower(name) {
	case "", "utf-8", "utf8":
		return true
	}
	return false
}

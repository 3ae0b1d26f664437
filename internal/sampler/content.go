package sampler

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

const minBinaryLength = 256

// excludedKeys never count toward an export's size
var excludedKeys = map[string]bool{
	"system":        true,
	"system_prompt": true,
	"systemprompt":  true,
	"context":       true,
	"attachments":   true,
	"attachment":    true,
	"files":         true,
	"images":        true,
	"image":         true,
	"image_url":     true,
	"base64":        true,
}

// Content returns the text of a stored log field that an export would carry.
// JSON payloads are walked with system messages, context blocks, attachments
// and base64 data removed; plain text is returned as is.
func Content(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if (trimmed[0] != '{' && trimmed[0] != '[') || !gjson.Valid(trimmed) {
		if isBinary(trimmed) {
			return ""
		}
		return raw
	}

	var b strings.Builder
	collect(gjson.Parse(trimmed), &b)
	return b.String()
}

// ValueContent is Content for an already decoded value such as a log's actual field
func ValueContent(v interface{}) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return Content(value)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return Content(string(data))
}

func collect(v gjson.Result, b *strings.Builder) {
	switch {
	case v.IsArray():
		v.ForEach(func(_, item gjson.Result) bool {
			if item.IsObject() && strings.EqualFold(item.Get("role").String(), "system") {
				return true
			}
			collect(item, b)
			return true
		})
	case v.IsObject():
		v.ForEach(func(key, item gjson.Result) bool {
			if excludedKeys[strings.ToLower(key.String())] {
				return true
			}
			collect(item, b)
			return true
		})
	case v.Type == gjson.String:
		if isBinary(v.Str) {
			return
		}
		writeText(b, v.Str)
	case v.Type == gjson.Number, v.Type == gjson.True, v.Type == gjson.False:
		writeText(b, v.Raw)
	}
}

func writeText(b *strings.Builder, s string) {
	if b.Len() > 0 {
		b.WriteByte(' ')
	}
	b.WriteString(s)
}

// isBinary reports data URIs and long values that decode as standard base64.
// A value must mix upper case, lower case and digits so single-class text
// such as a run of one repeated letter still counts toward the estimate.
func isBinary(s string) bool {
	if strings.HasPrefix(s, "data:") && strings.Contains(s, ";base64,") {
		return true
	}
	if len(s) < minBinaryLength || len(s)%4 != 0 {
		return false
	}

	var upper, lower, digit bool
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z':
			upper = true
		case c >= 'a' && c <= 'z':
			lower = true
		case c >= '0' && c <= '9':
			digit = true
		case c == '+' || c == '/' || c == '=':
		default:
			return false
		}
	}
	if !upper || !lower || !digit {
		return false
	}

	_, err := base64.StdEncoding.DecodeString(s)
	return err == nil
}

// Tokens estimates the token count of text at charsPerToken characters per token, rounded up
func Tokens(text string, charsPerToken int) int {
	if charsPerToken <= 0 {
		charsPerToken = DefaultCharsPerToken
	}
	chars := utf8.RuneCountInString(text)
	return (chars + charsPerToken - 1) / charsPerToken
}

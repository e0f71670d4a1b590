package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"regexp"
	"strings"

	"github.com/admi-n/trustguard/src/internal"
)

// Parser 从模型回复中提取并严格解码 JSON
type Parser struct {
	fenceNonGreedy *regexp.Regexp
	fenceGreedy    *regexp.Regexp
}

// NewParser 创建新的解析器
func NewParser() *Parser {
	return &Parser{
		fenceNonGreedy: regexp.MustCompile("(?s)(?:~~~|```)[ \\t]*(?:json|JSON)?[ \\t]*\\n?(.*?)\\n?[ \\t]*(?:~~~|```)"),
		fenceGreedy:    regexp.MustCompile("(?s)(?:~~~|```)[ \\t]*(?:json|JSON)?[ \\t]*\\n?(.*)\\n?[ \\t]*(?:~~~|```)"),
	}
}

// ExtractJSON 依次尝试：原文、markdown 代码块、首个 { 到最后一个 }。
// 只做定位，不修补内容。
func (p *Parser) ExtractJSON(response string) (string, error) {
	response = strings.TrimSpace(response)
	if response == "" {
		return "", internal.Schemaf("empty response")
	}

	if isJSONObject(response) {
		return response, nil
	}

	for _, re := range []*regexp.Regexp{p.fenceNonGreedy, p.fenceGreedy} {
		if m := re.FindStringSubmatch(response); len(m) > 1 {
			candidate := strings.TrimSpace(m[1])
			if isJSONObject(candidate) {
				return candidate, nil
			}
		}
	}

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start >= 0 && end > start {
		candidate := response[start : end+1]
		if isJSONObject(candidate) {
			return candidate, nil
		}
	}

	return "", internal.Schemaf("response does not contain a JSON object")
}

// DecodeStrict 解码到 v：未知字段、类型不符、尾随数据均返回 SchemaViolation
func (p *Parser) DecodeStrict(response string, v any) error {
	raw, err := p.ExtractJSON(response)
	if err != nil {
		return err
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return internal.Schemaf("field %q has wrong type: expected %s, got %s", typeErr.Field, typeErr.Type, typeErr.Value)
		}
		return internal.Schemaf("%v", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return internal.Schemaf("unexpected data after JSON object")
	}
	return nil
}

func isJSONObject(s string) bool {
	b := []byte(strings.TrimSpace(s))
	return bytes.HasPrefix(b, []byte("{")) && json.Valid(b)
}

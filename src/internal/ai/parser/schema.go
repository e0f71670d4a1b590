package parser

import (
	"fmt"
	"strings"

	"github.com/admi-n/trustguard/src/internal"
	"github.com/admi-n/trustguard/src/internal/ai/client"
)

// 输出字段名
const (
	FieldCategory      = "category"
	FieldFixes         = "fixes"
	FieldFixedContract = "fixed_contract"
)

// ClassificationSchema 分类结果结构，category 的取值限定为类别名称
func ClassificationSchema(categories []string) *client.Schema {
	return &client.Schema{Fields: []client.Field{
		{
			Name:        FieldCategory,
			Type:        client.FieldString,
			Description: "The category the issue belongs to, exactly one of the vulnerability pattern names",
			Enum:        append([]string(nil), categories...),
		},
		{
			Name:        FieldFixes,
			Type:        client.FieldStringArray,
			Description: "Ordered list of suggested fixes",
		},
	}}
}

// RemediationSchema 修复结果结构
func RemediationSchema() *client.Schema {
	return &client.Schema{Fields: []client.Field{
		{
			Name:        FieldFixedContract,
			Type:        client.FieldString,
			Description: "The complete corrected smart contract source code",
		},
	}}
}

// GetSchemaInstructions 返回给 AI 的格式说明
func GetSchemaInstructions(s *client.Schema) string {
	var sb strings.Builder
	sb.WriteString("Return ONLY a JSON object, without any additional text or markdown formatting.\n")
	sb.WriteString("The object must contain exactly these fields and no others:\n")
	for _, f := range s.Fields {
		fmt.Fprintf(&sb, "- %q (%s, required): %s", f.Name, jsonType(f.Type), f.Description)
		if len(f.Enum) > 0 {
			quoted := make([]string, len(f.Enum))
			for i, e := range f.Enum {
				quoted[i] = fmt.Sprintf("%q", e)
			}
			fmt.Fprintf(&sb, ". Must be one of: %s", strings.Join(quoted, ", "))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func jsonType(t client.FieldType) string {
	if t == client.FieldStringArray {
		return "array of strings"
	}
	return "string"
}

type rawClassification struct {
	Category *string  `json:"category"`
	Fixes    []string `json:"fixes"`
}

type rawRemediation struct {
	FixedContract *string `json:"fixed_contract"`
}

// ParseClassification 解析分类回复；类别是否属于类别表由调用方校验
func (p *Parser) ParseClassification(response string) (internal.ClassificationResult, error) {
	var raw rawClassification
	if err := p.DecodeStrict(response, &raw); err != nil {
		return internal.ClassificationResult{}, err
	}

	if raw.Category == nil {
		return internal.ClassificationResult{}, internal.Schemaf("missing required field %q", FieldCategory)
	}
	if strings.TrimSpace(*raw.Category) == "" {
		return internal.ClassificationResult{}, internal.Schemaf("field %q is empty", FieldCategory)
	}
	if raw.Fixes == nil {
		return internal.ClassificationResult{}, internal.Schemaf("missing required field %q", FieldFixes)
	}
	if len(raw.Fixes) == 0 {
		return internal.ClassificationResult{}, internal.Schemaf("field %q is empty", FieldFixes)
	}

	fixes := make([]string, len(raw.Fixes))
	for i, f := range raw.Fixes {
		f = strings.TrimSpace(f)
		if f == "" {
			return internal.ClassificationResult{}, internal.Schemaf("field %q item %d is empty", FieldFixes, i)
		}
		fixes[i] = f
	}

	return internal.ClassificationResult{Category: *raw.Category, Fixes: fixes}, nil
}

// ParseRemediation 解析修复回复
func (p *Parser) ParseRemediation(response string) (internal.RemediatedContract, error) {
	var raw rawRemediation
	if err := p.DecodeStrict(response, &raw); err != nil {
		return internal.RemediatedContract{}, err
	}

	if raw.FixedContract == nil {
		return internal.RemediatedContract{}, internal.Schemaf("missing required field %q", FieldFixedContract)
	}
	if strings.TrimSpace(*raw.FixedContract) == "" {
		return internal.RemediatedContract{}, internal.Schemaf("field %q is empty", FieldFixedContract)
	}

	return internal.RemediatedContract{SourceText: *raw.FixedContract}, nil
}

// Package catalog 保存漏洞类别表：名称、特征关键字和候选修复方案。
// Catalog 构造后只读，可在并发审计之间共享。
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// VulnerabilityCategory 漏洞类别
type VulnerabilityCategory struct {
	Name           string   `json:"-" yaml:"name"`
	Signatures     []string `json:"patterns" yaml:"patterns"`
	CandidateFixes []string `json:"fixes" yaml:"fixes"`
}

// Catalog 不可变的漏洞类别表
type Catalog struct {
	entries []VulnerabilityCategory
	byName  map[string]int
	byFold  map[string]int
}

// New 校验并构建类别表：名称非空、大小写不敏感唯一，修复列表非空
func New(entries []VulnerabilityCategory) (*Catalog, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("catalog: no categories")
	}

	c := &Catalog{
		entries: make([]VulnerabilityCategory, 0, len(entries)),
		byName:  make(map[string]int, len(entries)),
		byFold:  make(map[string]int, len(entries)),
	}

	for i, e := range entries {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			return nil, fmt.Errorf("catalog: entry %d has empty name", i)
		}
		fold := strings.ToLower(name)
		if _, dup := c.byFold[fold]; dup {
			return nil, fmt.Errorf("catalog: duplicate category %q", name)
		}
		if len(e.CandidateFixes) == 0 {
			return nil, fmt.Errorf("catalog: category %q has no fixes", name)
		}

		c.byName[name] = len(c.entries)
		c.byFold[fold] = len(c.entries)
		c.entries = append(c.entries, VulnerabilityCategory{
			Name:           name,
			Signatures:     append([]string(nil), e.Signatures...),
			CandidateFixes: append([]string(nil), e.CandidateFixes...),
		})
	}

	return c, nil
}

// ByName 按名称精确查找
func (c *Catalog) ByName(name string) (VulnerabilityCategory, bool) {
	i, ok := c.byName[name]
	if !ok {
		return VulnerabilityCategory{}, false
	}
	return c.entries[i].clone(), true
}

// Resolve 大小写不敏感的精确匹配，不做模糊或部分匹配
func (c *Catalog) Resolve(name string) (VulnerabilityCategory, bool) {
	i, ok := c.byFold[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return VulnerabilityCategory{}, false
	}
	return c.entries[i].clone(), true
}

// All 按定义顺序返回全部类别（副本）
func (c *Catalog) All() []VulnerabilityCategory {
	out := make([]VulnerabilityCategory, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.clone()
	}
	return out
}

// Names 返回全部类别名称
func (c *Catalog) Names() []string {
	names := make([]string, len(c.entries))
	for i, e := range c.entries {
		names[i] = e.Name
	}
	return names
}

// Len 类别数量
func (c *Catalog) Len() int { return len(c.entries) }

// JSON 序列化为提示词上下文，格式为 {"<name>": {"patterns": [...], "fixes": [...]}}，保持定义顺序
func (c *Catalog) JSON() (string, error) {
	var sb strings.Builder
	sb.WriteString("{\n")
	for i, e := range c.entries {
		key, err := json.Marshal(e.Name)
		if err != nil {
			return "", err
		}
		body, err := json.MarshalIndent(e, "  ", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal category %s: %w", e.Name, err)
		}
		sb.WriteString("  ")
		sb.Write(key)
		sb.WriteString(": ")
		sb.Write(body)
		if i < len(c.entries)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("}")
	return sb.String(), nil
}

func (v VulnerabilityCategory) clone() VulnerabilityCategory {
	return VulnerabilityCategory{
		Name:           v.Name,
		Signatures:     append([]string(nil), v.Signatures...),
		CandidateFixes: append([]string(nil), v.CandidateFixes...),
	}
}

// catalogFile YAML 类别文件结构
type catalogFile struct {
	Categories []VulnerabilityCategory `yaml:"categories"`
}

// LoadFile 从 YAML 文件加载自定义类别表
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}

	return New(f.Categories)
}

package prompts

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

//go:embed templates/*.tmpl
var defaultTemplates embed.FS

// 内置模板名称
const (
	TemplateClassify  = "classify"
	TemplateRemediate = "remediate"
)

// Loader 模板加载器：优先读取自定义目录，文件不存在时回退到内置模板
type Loader struct {
	dir string
}

// NewLoader 创建加载器，dir 为空时只使用内置模板
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

// LoadTemplate 加载指定名称的 prompt 模板
func (l *Loader) LoadTemplate(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", fmt.Errorf("invalid template name %q", name)
	}

	if l.dir != "" {
		templatePath := filepath.Join(l.dir, name+".tmpl")
		content, err := os.ReadFile(templatePath)
		if err == nil {
			return string(content), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("failed to load template %s: %w", templatePath, err)
		}
	}

	content, err := defaultTemplates.ReadFile("templates/" + name + ".tmpl")
	if err != nil {
		return "", fmt.Errorf("template %s not found: %w", name, err)
	}
	return string(content), nil
}

// ListTemplates 列出所有可用模板（内置 + 自定义目录）
func (l *Loader) ListTemplates() ([]string, error) {
	seen := make(map[string]bool)

	entries, err := defaultTemplates.ReadDir("templates")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded templates: %w", err)
	}
	collectTemplates(entries, seen)

	if l.dir != "" {
		entries, err := os.ReadDir(l.dir)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read prompts directory: %w", err)
		}
		collectTemplates(entries, seen)
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func collectTemplates(entries []fs.DirEntry, seen map[string]bool) {
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".tmpl") {
			seen[strings.TrimSuffix(entry.Name(), ".tmpl")] = true
		}
	}
}

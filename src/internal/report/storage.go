package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Storage 报告存储接口，返回报告的存放位置
type Storage interface {
	Save(ctx context.Context, report *Report, content string) (string, error)
}

// FileStorage 文件存储实现
type FileStorage struct {
	OutputDir string
}

// NewFileStorage 创建文件存储
func NewFileStorage(outputDir string) *FileStorage {
	return &FileStorage{
		OutputDir: outputDir,
	}
}

// Save 保存报告到文件
func (s *FileStorage) Save(_ context.Context, report *Report, content string) (string, error) {
	if err := os.MkdirAll(s.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	// 同一秒内的多次审计靠报告 ID 区分
	filename := fmt.Sprintf("audit_report_%s_%s.md", report.CreatedAt.Format("20060102_150405"), shortID(report.ID))
	path := filepath.Join(s.OutputDir, filename)

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}

	return path, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

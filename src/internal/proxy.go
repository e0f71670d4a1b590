package internal

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ValidateProxyURL 验证代理URL格式，空字符串表示不使用代理
func ValidateProxyURL(proxyURL string) error {
	if strings.TrimSpace(proxyURL) == "" {
		return nil
	}

	u, err := url.Parse(proxyURL)
	if err != nil {
		return fmt.Errorf("invalid proxy URL format: %w", err)
	}

	// 检查协议
	if u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "socks5" {
		return fmt.Errorf("unsupported proxy scheme: %s (supported: http, https, socks5)", u.Scheme)
	}

	if u.Host == "" {
		return fmt.Errorf("proxy host cannot be empty")
	}

	return nil
}

// CreateProxyTransport 创建可选代理的 Transport
func CreateProxyTransport(proxyURL string) (*http.Transport, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSHandshakeTimeout = 10 * time.Second
	transport.IdleConnTimeout = 90 * time.Second

	proxyURL = strings.TrimSpace(proxyURL)
	if proxyURL == "" {
		return transport, nil
	}

	if err := ValidateProxyURL(proxyURL); err != nil {
		return nil, err
	}
	u, _ := url.Parse(proxyURL)
	transport.Proxy = http.ProxyURL(u)
	return transport, nil
}

// CreateProxyHTTPClient 创建带代理的HTTP客户端；timeout 为 0 表示由调用方 context 控制
func CreateProxyHTTPClient(proxyURL string, timeout time.Duration) (*http.Client, error) {
	transport, err := CreateProxyTransport(proxyURL)
	if err != nil {
		return nil, err
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}, nil
}

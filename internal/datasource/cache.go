package datasource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// EnsureRelaysFile 确保中继列表文件存在，必要时从 url 下载并缓存
//
// An existing file is never refreshed. With an empty url a missing file is
// reported as an error.
func EnsureRelaysFile(ctx context.Context, client *http.Client, cachePath, url string) error {
	if _, err := os.Stat(cachePath); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("检查中继文件 %s 时出错: %w", cachePath, err)
	}

	if url == "" {
		return fmt.Errorf("中继文件 '%s' 不存在且未配置下载地址", cachePath)
	}
	if err := downloadAndCache(ctx, client, cachePath, url); err != nil {
		return fmt.Errorf("下载和缓存中继列表失败: %w", err)
	}
	return nil
}

func downloadAndCache(ctx context.Context, client *http.Client, filePath, url string) error {
	data, err := downloadURL(ctx, client, url)
	if err != nil {
		return err
	}
	if _, err := ParseRelays(data, LoadOptions{}); err != nil {
		return fmt.Errorf("下载的内容不是有效的中继列表: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return fmt.Errorf("创建缓存目录失败: %w", err)
	}
	// 写入临时文件后重命名
	tmp := filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("写入中继数据失败: %w", err)
	}
	return os.Rename(tmp, filePath)
}

func downloadURL(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status: %s", resp.Status)
	}

	return io.ReadAll(resp.Body)
}

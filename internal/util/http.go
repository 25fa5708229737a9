package util

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var Client *http.Client = &http.Client{
	Timeout: time.Second * 120,
	Transport: &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		DisableKeepAlives:     true,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
	},
}

func Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return Client.Do(req)
}

// DownloadFile 先写临时文件，成功之后再改名，失败不会留下不完整的文件
func DownloadFile(filePath, fileURL string) error {
	log.Infof("download %s", fileURL)
	resp, err := Get(context.Background(), fileURL)
	if err != nil {
		return errors.Wrap(err, "Get")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("download %s: status %d", fileURL, resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return errors.Wrap(err, "MkdirAll")
	}
	tmpPath := filePath + ".download"
	out, err := os.Create(tmpPath)
	if err != nil {
		return errors.Wrap(err, "Create")
	}
	n, err := io.Copy(out, resp.Body)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrapf(err, "Copy %d", n)
	}
	return errors.Wrap(os.Rename(tmpPath, filePath), "Rename")
}

package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/kirillkom/health-ai-service/internal/core/ports"
	"github.com/kirillkom/health-ai-service/internal/infrastructure/resilience"
)

type FileSaver interface {
	Save(ctx context.Context, ext string, data io.Reader) (string, int64, error)
}

// Downloader streams source documents from the media service into the scratch area.
type Downloader struct {
	mediaBase  *url.URL
	files      FileSaver
	httpClient *http.Client
	timeout    time.Duration
	maxBytes   int64
	executor   *resilience.Executor
}

type Options struct {
	Timeout  time.Duration
	MaxBytes int64
	Executor *resilience.Executor
}

func New(mediaBaseURL string, files FileSaver, opts Options) (*Downloader, error) {
	var base *url.URL
	if strings.TrimSpace(mediaBaseURL) != "" {
		parsed, err := url.Parse(strings.TrimRight(mediaBaseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("parse media service url: %w", err)
		}
		base = parsed
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 50 << 20
	}
	return &Downloader{
		mediaBase:  base,
		files:      files,
		httpClient: &http.Client{},
		timeout:    opts.Timeout,
		maxBytes:   opts.MaxBytes,
		executor:   opts.Executor,
	}, nil
}

func (d *Downloader) Download(ctx context.Context, fileURL string) (ports.DownloadedFile, error) {
	target, err := d.resolve(fileURL)
	if err != nil {
		return ports.DownloadedFile{}, err
	}

	return resilience.Call(ctx, d.executor, "media.download", func(callCtx context.Context) (ports.DownloadedFile, error) {
		callCtx, cancel := context.WithTimeout(callCtx, d.timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(callCtx, http.MethodGet, target, nil)
		if err != nil {
			return ports.DownloadedFile{}, fmt.Errorf("create download request: %w", err)
		}
		resp, err := d.httpClient.Do(req)
		if err != nil {
			return ports.DownloadedFile{}, fmt.Errorf("media download request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return ports.DownloadedFile{}, resilience.NewHTTPStatusError("media", "download", resp)
		}

		contentType := resp.Header.Get("Content-Type")
		body := &limitedReader{r: resp.Body, remaining: d.maxBytes}
		filePath, size, err := d.files.Save(callCtx, scratchExt(target, contentType), body)
		if err != nil {
			return ports.DownloadedFile{}, err
		}
		return ports.DownloadedFile{Path: filePath, ContentType: contentType, Size: size}, nil
	}, resilience.ClassifyHTTPError)
}

// resolve makes relative record URLs absolute against the media service.
func (d *Downloader) resolve(fileURL string) (string, error) {
	raw := strings.TrimSpace(fileURL)
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse file url: %w", err)
	}
	if parsed.IsAbs() {
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return "", fmt.Errorf("unsupported file url scheme %q", parsed.Scheme)
		}
		return parsed.String(), nil
	}
	if d.mediaBase == nil {
		return "", fmt.Errorf("relative file url %q without media service url", raw)
	}
	rel, err := url.Parse(strings.TrimLeft(raw, "/"))
	if err != nil {
		return "", fmt.Errorf("parse file url: %w", err)
	}
	return d.mediaBase.ResolveReference(rel).String(), nil
}

func scratchExt(target, contentType string) string {
	if parsed, err := url.Parse(target); err == nil {
		if ext := path.Ext(parsed.Path); ext != "" {
			return ext
		}
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	exts, err := mime.ExtensionsByType(mediaType)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return exts[0]
}

var errTooLarge = errors.New("download exceeds size limit")

type limitedReader struct {
	r         io.Reader
	remaining int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.remaining <= 0 {
		var next [1]byte
		if n, err := l.r.Read(next[:]); n == 0 && err == io.EOF {
			return 0, io.EOF
		}
		return 0, errTooLarge
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	return n, err
}

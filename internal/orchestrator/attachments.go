package orchestrator

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/sourcegraph/conc/pool"

	"github.com/kapu/persona-globe-go/internal/constants"
	"github.com/kapu/persona-globe-go/internal/domain"
	"github.com/kapu/persona-globe-go/internal/util"
)

// FileInput is a user-supplied file that has not been read yet.
type FileInput struct {
	Name        string
	ContentType string
	Open        func() (io.ReadCloser, error)
}

// FileFromPath wraps a file on disk, guessing its content type from the
// extension.
func FileFromPath(path string) FileInput {
	return FileInput{
		Name:        filepath.Base(path),
		ContentType: mime.TypeByExtension(strings.ToLower(filepath.Ext(path))),
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}
}

// FileFromBytes wraps in-memory content, e.g. a multipart upload.
func FileFromBytes(name, contentType string, data []byte) FileInput {
	return FileInput{
		Name:        name,
		ContentType: contentType,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

var textExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".json": true,
	".csv":  true,
}

// ReadAttachments reads every file concurrently. The batch succeeds or fails
// as a unit; the first error wins.
func ReadAttachments(ctx context.Context, files []FileInput) ([]domain.Attachment, error) {
	if len(files) == 0 {
		return nil, nil
	}

	out := make([]domain.Attachment, len(files))
	p := pool.New().
		WithMaxGoroutines(constants.AttachmentConfig.MaxConcurrentReads).
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError()

	for idx, f := range files {
		idx, f := idx, f
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			att, err := readAttachment(f)
			if err != nil {
				return err
			}
			out[idx] = att
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func readAttachment(f FileInput) (domain.Attachment, error) {
	if f.Open == nil {
		return domain.Attachment{}, fmt.Errorf("attachment %q has no content", f.Name)
	}
	rc, err := f.Open()
	if err != nil {
		return domain.Attachment{}, fmt.Errorf("failed to open attachment %q: %w", f.Name, err)
	}
	defer rc.Close()

	limit := constants.AIInputLimits.MaxAttachmentBytes
	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return domain.Attachment{}, fmt.Errorf("failed to read attachment %q: %w", f.Name, err)
	}
	if int64(len(data)) > limit {
		return domain.Attachment{}, fmt.Errorf("attachment %q exceeds %d bytes", f.Name, limit)
	}

	contentType := mediaType(f.ContentType)
	if contentType == "" {
		contentType = mediaType(http.DetectContentType(data))
	}

	att := domain.Attachment{Name: f.Name, ContentType: contentType}
	switch {
	case contentType == "text/html":
		text, err := htmlText(string(data))
		if err != nil {
			return domain.Attachment{}, fmt.Errorf("failed to parse html attachment %q: %w", f.Name, err)
		}
		att.Content = text
	case isTextual(f.Name, contentType) && utf8.Valid(data):
		att.Content = string(data)
	default:
		att.Content = "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
		att.IsDataURL = true
	}
	return att, nil
}

func mediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}

func isTextual(name, contentType string) bool {
	if strings.HasPrefix(contentType, "text/") || contentType == "application/json" {
		return true
	}
	return textExtensions[strings.ToLower(filepath.Ext(name))]
}

func htmlText(markup string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript").Remove()
	return util.CollapseWhitespace(doc.Text()), nil
}

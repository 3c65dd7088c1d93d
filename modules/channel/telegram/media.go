package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

var errFileTooLarge = errors.New("telegram: file too large")

// upload is a photo or document saved for the turn that reads it.
type upload struct {
	path   string
	prompt string
}

func hasMedia(msg *Message) bool {
	return len(msg.Photo) > 0 || msg.Document != nil
}

// fetchUpload downloads the media of msg into the uploads directory and
// builds the turn text pointing the backend at it. Photos arrive in several
// sizes; the largest is kept.
func (t *Telegram) fetchUpload(ctx context.Context, msg *Message) (*upload, error) {
	var (
		fileID, name, tag string
		size              int64
		caption           = strings.TrimSpace(msg.Caption)
	)
	switch {
	case len(msg.Photo) > 0:
		largest := msg.Photo[len(msg.Photo)-1]
		fileID, size, tag = largest.FileID, largest.FileSize, "Image"
		name = fmt.Sprintf("image_%d.jpg", msg.MessageID)
		if caption == "" {
			caption = "Analyze this image."
		}
	case msg.Document != nil:
		base := safeFileName(msg.Document.FileName)
		fileID, size, tag = msg.Document.FileID, msg.Document.FileSize, "File"
		name = fmt.Sprintf("%d_%s", msg.MessageID, base)
		if caption == "" {
			caption = "Analyze: " + base
		}
	default:
		return nil, errors.New("telegram: message has no media")
	}
	if size > t.config.MaxFileSize {
		return nil, errFileTooLarge
	}

	file, err := t.client.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file.FileSize > t.config.MaxFileSize {
		return nil, errFileTooLarge
	}

	if err := os.MkdirAll(t.config.UploadsDir, 0o700); err != nil {
		return nil, fmt.Errorf("telegram: create uploads dir: %w", err)
	}
	path := filepath.Join(t.config.UploadsDir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("telegram: create upload: %w", err)
	}
	n, err := t.client.Download(ctx, file.FilePath, f, t.config.MaxFileSize)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return nil, err
	}

	t.logger.Info("telegram: upload saved", "message", msg.MessageID, "kind", tag, "bytes", n)
	return &upload{
		path:   path,
		prompt: fmt.Sprintf("[%s: %s]\n\n%s", tag, path, caption),
	}, nil
}

func (u *upload) remove(logger *slog.Logger) {
	if err := os.Remove(u.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("telegram: could not remove upload", "path", u.path, "error", err)
	}
}

// safeFileName keeps the last element of a user-supplied name so it cannot
// leave the uploads directory.
func safeFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == ".." || name == "/" || name == "" {
		return "document"
	}
	return name
}

// uploadFailure is the reply for a download that did not complete.
func uploadFailure(err error, limit int64) string {
	if errors.Is(err, errFileTooLarge) {
		return fmt.Sprintf("File too large (limit %d MB).", limit>>20)
	}
	return "Could not download the file. Please try again."
}

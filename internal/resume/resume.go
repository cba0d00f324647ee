// Package resume provides the candidate resume text used by the comparator.
package resume

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/amishk599/jobmatch/internal/model"
)

// ErrEmptyResume is returned when the resume source has no text.
var ErrEmptyResume = errors.New("resume is empty")

var (
	_ model.ResumeProvider = (*FileProvider)(nil)
	_ model.ResumeProvider = StaticProvider("")
)

// FileProvider reads a plain-text or markdown resume from disk on every call,
// so edits take effect on the next queue run without a restart.
type FileProvider struct {
	path string
}

// NewFileProvider returns a provider reading path.
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

// ResumeText returns the file's text with surrounding whitespace removed.
func (p *FileProvider) ResumeText(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("read resume: %w", err)
	}
	data, err := os.ReadFile(p.path)
	if err != nil {
		return "", fmt.Errorf("read resume %s: %w", p.path, err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("read resume %s: %w", p.path, ErrEmptyResume)
	}
	return text, nil
}

// StaticProvider returns a fixed resume text.
type StaticProvider string

// ResumeText returns the static text.
func (s StaticProvider) ResumeText(_ context.Context) (string, error) {
	text := strings.TrimSpace(string(s))
	if text == "" {
		return "", ErrEmptyResume
	}
	return text, nil
}

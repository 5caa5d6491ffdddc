package core

import (
	"path/filepath"
	"strings"
)

// AcceptedContentType is the declared MIME type accepted regardless of the
// filename extension.
const AcceptedContentType = "message/rfc822"

// AcceptedExtension is the filename extension accepted regardless of the
// declared type. Matching is case-insensitive.
const AcceptedExtension = ".eml"

// FileValidator checks that a user-picked file is an acceptable raw message.
// It is pure and enforces no size limit.
type FileValidator struct{}

// NewFileValidator creates a new file validator.
func NewFileValidator() *FileValidator {
	return &FileValidator{}
}

// Validate accepts the file when its extension is .eml (case-insensitive) or
// its declared type is message/rfc822, and rejects anything else with a
// ValidationError.
func (v *FileValidator) Validate(file *SelectedFile) error {
	if file == nil {
		return &ValidationError{Reason: "no file selected"}
	}

	ext := strings.ToLower(filepath.Ext(file.Name))
	if ext == AcceptedExtension {
		return nil
	}

	declared := strings.ToLower(strings.TrimSpace(file.ContentType))
	if declared == AcceptedContentType {
		return nil
	}

	return &ValidationError{
		FileName: file.Name,
		Reason:   "only .eml message files are accepted",
	}
}

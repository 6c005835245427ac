package service

import (
	"bytes"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"

	appErrors "github.com/noah-isme/client-portal-api/pkg/errors"
)

const (
	maxFilenameLength = 255
	// text uploads up to this size are scanned for script payloads
	scanLimitBytes = 1 << 20
	sniffBytes     = 3072
)

var defaultAllowedTypes = map[string][]string{
	"application/pdf":    {".pdf"},
	"image/jpeg":         {".jpg", ".jpeg"},
	"image/png":          {".png"},
	"image/gif":          {".gif"},
	"image/webp":         {".webp"},
	"text/plain":         {".txt"},
	"text/csv":           {".csv"},
	"application/msword": {".doc"},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {".docx"},
	"application/vnd.ms-excel": {".xls"},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         {".xlsx"},
	"application/vnd.ms-powerpoint":                                             {".ppt"},
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": {".pptx"},
	"application/zip": {".zip"},
}

var dangerousExtensions = map[string]struct{}{
	".exe": {}, ".bat": {}, ".cmd": {}, ".com": {}, ".scr": {}, ".pif": {}, ".msi": {}, ".dll": {},
	".js": {}, ".vbs": {}, ".vbe": {}, ".ps1": {}, ".sh": {}, ".jar": {}, ".app": {}, ".hta": {},
	".php": {}, ".py": {}, ".pl": {}, ".cgi": {}, ".jsp": {}, ".asp": {}, ".aspx": {}, ".html": {}, ".htm": {}, ".svg": {},
}

var scriptSignatures = [][]byte{
	[]byte("<script"),
	[]byte("javascript:"),
	[]byte("vbscript:"),
	[]byte("<?php"),
	[]byte("<iframe"),
	[]byte("document.cookie"),
	[]byte("onerror="),
	[]byte("onload="),
	[]byte("eval("),
}

// UploadCandidate describes an incoming file before anything is stored.
type UploadCandidate struct {
	Filename     string
	DeclaredMIME string
	Size         int64
	// Head holds the leading bytes of the content; for scannable text files it holds all of it.
	Head []byte
}

// ValidatedUpload is the outcome of a successful validation.
type ValidatedUpload struct {
	Filename  string
	Extension string
	MIME      string
}

// FileValidator enforces size, type and name rules on uploads.
type FileValidator struct {
	maxSize int64
	allowed map[string][]string
}

// NewFileValidator builds a validator. An empty allow-list falls back to the default document set.
func NewFileValidator(maxSize int64, allowedMIMEs []string) *FileValidator {
	if maxSize <= 0 {
		maxSize = 100 << 20
	}
	allowed := defaultAllowedTypes
	if len(allowedMIMEs) > 0 {
		allowed = make(map[string][]string, len(allowedMIMEs))
		for _, m := range allowedMIMEs {
			m = strings.ToLower(strings.TrimSpace(m))
			if exts, ok := defaultAllowedTypes[m]; ok {
				allowed[m] = exts
			}
		}
	}
	return &FileValidator{maxSize: maxSize, allowed: allowed}
}

// FilterType turns a file_type filter into the stored MIME type. A MIME type passes through
// normalized; an extension such as "pdf" or ".PDF" resolves through the allow-list.
// Unknown extensions come back unchanged and match nothing.
func (v *FileValidator) FilterType(raw string) string {
	value := normalizeMIME(raw)
	if value == "" || strings.Contains(value, "/") {
		return value
	}
	ext := "." + strings.TrimPrefix(value, ".")
	for mime, exts := range v.allowed {
		for _, candidate := range exts {
			if candidate == ext {
				return mime
			}
		}
	}
	return value
}

// NeedsFullScan reports whether the whole body must be buffered for the content scan.
func (v *FileValidator) NeedsFullScan(declaredMIME string, size int64) bool {
	return strings.HasPrefix(normalizeMIME(declaredMIME), "text/") && size <= scanLimitBytes
}

// SniffLength is how many leading bytes Validate needs for binary files.
func (v *FileValidator) SniffLength() int { return sniffBytes }

// ValidateName rejects traversal, control characters, hidden files and executable names.
func (v *FileValidator) ValidateName(name string) error {
	if name == "" || len(name) > maxFilenameLength || !utf8.ValidString(name) {
		return appErrors.ErrInvalidFilename
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return appErrors.Clone(appErrors.ErrInvalidFilename, "file name must not contain path segments")
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return appErrors.Clone(appErrors.ErrInvalidFilename, "file name contains control characters")
		}
	}
	if strings.HasPrefix(name, ".") {
		return appErrors.Clone(appErrors.ErrInvalidFilename, "hidden files are not allowed")
	}
	parts := strings.Split(strings.ToLower(name), ".")
	for _, part := range parts[1:] {
		if _, bad := dangerousExtensions["."+strings.TrimSpace(part)]; bad {
			return appErrors.Clone(appErrors.ErrInvalidFilename, "executable file names are not allowed")
		}
	}
	return nil
}

// Validate checks a candidate and returns its normalised type information.
func (v *FileValidator) Validate(c UploadCandidate) (*ValidatedUpload, error) {
	if c.Size <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file is empty")
	}
	if c.Size > v.maxSize {
		return nil, appErrors.ErrFileTooLarge
	}
	if err := v.ValidateName(c.Filename); err != nil {
		return nil, err
	}

	declared := normalizeMIME(c.DeclaredMIME)
	exts, ok := v.allowed[declared]
	if !ok {
		return nil, appErrors.ErrUnsupportedFileType
	}
	ext := strings.ToLower(filepath.Ext(c.Filename))
	if !containsString(exts, ext) {
		return nil, appErrors.Clone(appErrors.ErrUnsupportedFileType, "file extension does not match its content type")
	}

	if len(c.Head) > 0 && !sniffMatches(mimetype.Detect(c.Head), declared) {
		return nil, appErrors.Clone(appErrors.ErrUnsupportedFileType, "file content does not match its declared type")
	}

	if strings.HasPrefix(declared, "text/") && int64(len(c.Head)) >= c.Size && containsScript(c.Head) {
		return nil, appErrors.ErrMalwareDetected
	}

	return &ValidatedUpload{Filename: c.Filename, Extension: ext, MIME: declared}, nil
}

// sniffMatches accepts the detected type when it and the declared type share an ancestry below
// the generic binary root, so zip-based office formats and text/plain subtypes are recognised.
func sniffMatches(detected *mimetype.MIME, declared string) bool {
	if detected == nil {
		return false
	}
	for m := detected; m != nil; m = m.Parent() {
		if isRoot(m) {
			break
		}
		if m.Is(declared) {
			return true
		}
	}
	declaredType := mimetype.Lookup(declared)
	for m := declaredType; m != nil; m = m.Parent() {
		if isRoot(m) {
			break
		}
		if detected.Is(m.String()) {
			return true
		}
	}
	return false
}

func isRoot(m *mimetype.MIME) bool {
	return m.Is("application/octet-stream")
}

func containsScript(content []byte) bool {
	lower := bytes.ToLower(content)
	for _, sig := range scriptSignatures {
		if bytes.Contains(lower, sig) {
			return true
		}
	}
	return false
}

func normalizeMIME(raw string) string {
	m := strings.ToLower(strings.TrimSpace(raw))
	if i := strings.Index(m, ";"); i >= 0 {
		m = strings.TrimSpace(m[:i])
	}
	return m
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

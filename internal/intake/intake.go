package intake

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/doctrans/doctrans/internal/storage"
)

// IncomingPrefix is the storage area for original uploads; translated outputs
// live under their own prefix so the two are never ambiguous.
const IncomingPrefix = "incoming"

// allowedExtensions mirrors the formats the translation engine accepts.
var allowedExtensions = map[string]bool{
	".xlsx": true, ".xls": true, ".xlsm": true,
	".docx": true, ".doc": true,
	".pdf": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".bmp": true, ".tiff": true, ".webp": true,
	".txt": true,
}

var spreadsheetExtensions = map[string]bool{
	".xlsx": true, ".xls": true, ".xlsm": true,
}

// DocumentTypes is the allow-list for the free-form document classification.
var DocumentTypes = []string{"general", "legal", "technical", "financial", "medical"}

// Upload is one candidate translation request as received from the caller.
type Upload struct {
	Filename string
	Size     int64
	Content  io.Reader

	SourceLanguage string `validate:"required"`
	TargetLanguage string `validate:"required"`
	DocumentType   string `validate:"required,oneof=general legal technical financial medical"`
}

// FileRef is the stable reference to a persisted original file.
type FileRef struct {
	Filename  string
	Path      string
	SizeBytes int64
}

// ValidationError identifies the offending upload field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

type Intake struct {
	storage  storage.Storage
	maxBytes int64
	validate *validator.Validate
}

func New(store storage.Storage, maxBytes int64) *Intake {
	return &Intake{
		storage:  store,
		maxBytes: maxBytes,
		validate: validator.New(),
	}
}

// Validate checks the upload without persisting anything.
func (i *Intake) Validate(upload Upload) error {
	if err := i.validate.Struct(upload); err != nil {
		var verrs validator.ValidationErrors
		if ok := asValidationErrors(err, &verrs); ok && len(verrs) > 0 {
			field := fieldName(verrs[0].Field())
			return &ValidationError{Field: field, Reason: verrs[0].Tag()}
		}
		return err
	}

	if upload.Filename == "" || upload.Content == nil {
		return &ValidationError{Field: "file", Reason: "required"}
	}
	ext := strings.ToLower(filepath.Ext(upload.Filename))
	if !allowedExtensions[ext] {
		return &ValidationError{Field: "file", Reason: fmt.Sprintf("unsupported extension %q", ext)}
	}
	if upload.Size <= 0 {
		return &ValidationError{Field: "file", Reason: "empty"}
	}
	if upload.Size > i.maxBytes {
		return &ValidationError{Field: "file", Reason: fmt.Sprintf("exceeds maximum size of %d bytes", i.maxBytes)}
	}

	return nil
}

// Save validates the upload and persists its content under a
// collision-resistant name. Nothing is persisted on validation failure.
func (i *Intake) Save(ctx context.Context, upload Upload) (FileRef, error) {
	if err := i.Validate(upload); err != nil {
		return FileRef{}, err
	}

	sanitized := SanitizeFilename(upload.Filename)
	path := fmt.Sprintf("%s/%s_%s", IncomingPrefix, uuid.New().String(), sanitized)

	if err := i.storage.Write(ctx, path, upload.Content, upload.Size); err != nil {
		return FileRef{}, fmt.Errorf("persisting upload: %w", err)
	}

	return FileRef{Filename: sanitized, Path: path, SizeBytes: upload.Size}, nil
}

// SanitizeFilename strips path components and any character outside a
// conservative allow-list.
func SanitizeFilename(name string) string {
	base := filepath.Base(filepath.FromSlash(name))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := b.String()
	if len(out) > 128 {
		out = out[len(out)-128:]
	}
	if out == "" || strings.Trim(out, "._") == "" {
		out = "upload"
	}
	return out
}

// OutputExtension decides the translated artifact's extension: spreadsheets
// stay spreadsheets, plain text stays text, everything else is rendered as a
// Word document.
func OutputExtension(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case spreadsheetExtensions[ext]:
		return ".xlsx"
	case ext == ".txt":
		return ".txt"
	default:
		return ".docx"
	}
}

func fieldName(structField string) string {
	switch structField {
	case "SourceLanguage":
		return "sourceLanguage"
	case "TargetLanguage":
		return "targetLanguage"
	case "DocumentType":
		return "documentType"
	default:
		return structField
	}
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if ok {
		*target = verrs
	}
	return ok
}

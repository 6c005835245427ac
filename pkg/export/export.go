package export

import (
	"fmt"
	"strings"
	"time"
)

// Format identifies a report encoding.
type Format string

const (
	FormatCSV Format = "csv"
	FormatPDF Format = "pdf"
)

// Dataset defines tabular export content.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// Document is a rendered report ready to be sent as an attachment.
type Document struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ParseFormat normalises a user supplied format, defaulting to CSV.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatPDF:
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", raw)
	}
}

// Render encodes data in the requested format; basename is used for the file name.
func Render(format Format, data Dataset, basename, title string) (*Document, error) {
	switch format {
	case FormatCSV:
		body, err := renderCSV(data)
		if err != nil {
			return nil, err
		}
		return &Document{Filename: basename + ".csv", ContentType: "text/csv", Body: body}, nil
	case FormatPDF:
		body, err := renderPDF(data, title, time.Now())
		if err != nil {
			return nil, err
		}
		return &Document{Filename: basename + ".pdf", ContentType: "application/pdf", Body: body}, nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

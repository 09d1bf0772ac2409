// Package export renders a board snapshot as HTML, PDF or DOCX.
package export

import (
	"errors"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

func ParseFormat(s string) (Format, bool) {
	switch f := Format(s); f {
	case FormatHTML, FormatPDF, FormatDOCX:
		return f, true
	case "":
		return FormatPDF, true
	default:
		return "", false
	}
}

// Request contains parameters for an export operation
type Request struct {
	BoardID         int64
	Format          Format
	IncludeComments bool
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrPDFDependencyMissing indicates no Chromium binary is installed.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates pandoc is not installed.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)

// Snapshot is the rendered view of a board.
type Snapshot struct {
	Name        string
	Description string
	Author      string
	ExportedAt  time.Time
	Tags        []Tag
	Lists       []List
}

type Tag struct {
	Name  string
	Color string
	Hex   string
}

type List struct {
	Name  string
	Cards []Card
}

type Card struct {
	Name         string
	Description  string
	Tags         []Tag
	Participants []string
	Checklist    []CheckItem
	Comments     []Comment
}

type CheckItem struct {
	Text string
	Done bool
}

type Comment struct {
	Author  string
	Text    string
	PubDate time.Time
	Edited  bool
}

// Package extract turns uploaded document files into ordered pages of
// plain text. The rest of the pipeline never touches file formats.
package extract

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"

	"docqa/internal/models"
)

var (
	// ErrEmptyInput means the file held no extractable text.
	ErrEmptyInput = errors.New("no extractable text")
	// ErrUnsupportedFormat means the file extension is not handled.
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

// File extracts plain text pages from the document at path, dispatching
// on the file extension. Formats without native pages map their natural
// unit (slide, sheet) to a page, or produce a single page.
func File(path string) ([]models.Page, error) {
	var (
		pages []models.Page
		err   error
	)
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".pdf":
		pages, err = parsePDF(path)
	case ".docx":
		pages, err = parseDOCX(path)
	case ".pptx":
		pages, err = parsePPTX(path)
	case ".xlsx":
		pages, err = parseXLSX(path)
	case ".ods":
		pages, err = parseODS(path)
	case ".md", ".markdown":
		pages, err = parseMarkdown(path)
	case ".txt":
		pages, err = parseText(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, err
	}
	if !hasText(pages) {
		return nil, fmt.Errorf("%w in %s", ErrEmptyInput, filepath.Base(path))
	}
	return pages, nil
}

// Supported reports whether File can handle the given filename.
func Supported(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf", ".docx", ".pptx", ".xlsx", ".ods", ".md", ".markdown", ".txt":
		return true
	}
	return false
}

func hasText(pages []models.Page) bool {
	for _, p := range pages {
		if strings.TrimSpace(p.Text) != "" {
			return true
		}
	}
	return false
}

func parsePDF(path string) ([]models.Page, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}

	var pages []models.Page
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract pdf page %d: %w", i, err)
		}
		pages = append(pages, models.Page{Number: i, Text: text})
	}
	return pages, nil
}

func parseDOCX(path string) ([]models.Page, error) {
	r, err := docx.ReadDocxFile(path)
	if err != nil {
		return nil, fmt.Errorf("read docx: %w", err)
	}
	defer r.Close()

	// GetContent returns the raw document XML; keep only the text runs.
	// A document without any run has no extractable text, the XML
	// itself must never leak into chunks.
	content := r.Editable().GetContent()
	text := collectTagText(content, "<w:t", "</w:t>")
	return []models.Page{{Number: 1, Text: text}}, nil
}

func parsePPTX(path string) ([]models.Page, error) {
	f, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("read pptx: %w", err)
	}
	defer f.Close()

	var pages []models.Page
	slide := 0
	for _, file := range f.File {
		if !strings.HasPrefix(file.Name, "ppt/slides/slide") {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}
		slide++
		pages = append(pages, models.Page{
			Number: slide,
			Text:   collectTagText(string(data), "<a:t", "</a:t>"),
		})
	}
	return pages, nil
}

func parseXLSX(path string) ([]models.Page, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("read xlsx: %w", err)
	}

	var pages []models.Page
	for i, sheet := range f.Sheets {
		var text strings.Builder
		text.WriteString("Sheet: " + sheet.Name + "\n")
		for _, row := range sheet.Rows {
			for _, cell := range row.Cells {
				text.WriteString(cell.String() + "\t")
			}
			text.WriteString("\n")
		}
		pages = append(pages, models.Page{Number: i + 1, Text: text.String()})
	}
	return pages, nil
}

func parseODS(path string) ([]models.Page, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ods: %w", err)
	}
	defer f.Close()

	var pages []models.Page
	for i, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			continue
		}
		var text strings.Builder
		text.WriteString("Sheet: " + sheetName + "\n")
		for _, row := range rows {
			text.WriteString(strings.Join(row, "\t"))
			text.WriteString("\n")
		}
		pages = append(pages, models.Page{Number: i + 1, Text: text.String()})
	}
	return pages, nil
}

func parseText(path string) ([]models.Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return []models.Page{{Number: 1, Text: string(data)}}, nil
}

// collectTagText gathers the character data of every occurrence of an
// XML tag, e.g. the <w:t> runs of a DOCX body.
func collectTagText(xmlContent, openTag, closeTag string) string {
	var text strings.Builder
	rest := xmlContent
	for {
		start := strings.Index(rest, openTag)
		if start < 0 {
			break
		}
		rest = rest[start+len(openTag):]
		// require a real tag (<w:t> or <w:t attr...>), not a prefix match
		if rest != "" && rest[0] != '>' && rest[0] != ' ' {
			continue
		}
		gt := strings.IndexByte(rest, '>')
		if gt < 0 {
			break
		}
		rest = rest[gt+1:]
		end := strings.Index(rest, closeTag)
		if end < 0 {
			break
		}
		text.WriteString(rest[:end])
		text.WriteString(" ")
		rest = rest[end+len(closeTag):]
	}
	return strings.TrimSpace(text.String())
}

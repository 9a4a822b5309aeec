package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ReadResume loads resume text from a plain text, markdown or HTML file.
func ReadResume(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read resume: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", "":
		return strings.TrimSpace(string(data)), nil
	case ".html", ".htm":
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(data)))
		if err != nil {
			return "", fmt.Errorf("parse resume html: %w", err)
		}
		doc.Find("script, style").Remove()
		return strings.Join(strings.Fields(doc.Find("body").Text()), " "), nil
	default:
		return "", fmt.Errorf("unsupported resume format %q", filepath.Ext(path))
	}
}

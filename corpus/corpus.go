// Package corpus concatenates normalized records into the single text
// payload consumed by the extraction phase.
package corpus

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/hwen/policy-digest/model"
)

// PDFExtractor returns the plain text of the PDF at path. Nil disables
// inlining; errors skip the inline block, never fail the build.
type PDFExtractor func(path string) (string, error)

// Build renders the records, in order, as numbered EMAIL sections joined by
// break markers, appending extracted text blocks for saved PDF attachments
// when an extractor is available.
func Build(records []model.Record, extract PDFExtractor, logger *slog.Logger) string {
	parts := make([]string, 0, len(records))
	for i, rec := range records {
		var sb strings.Builder
		fmt.Fprintf(&sb, "---EMAIL %d/%d---\n", i+1, len(records))
		fmt.Fprintf(&sb, "Subject: %s\nFrom: %s\nReceived: %s\n\n",
			rec.Subject, rec.Sender, rec.EffectiveTime.Format("2006-01-02 15:04:05"))
		sb.WriteString(rec.Body)

		for _, path := range rec.AttachmentPaths {
			if extract == nil || !strings.EqualFold(filepath.Ext(path), ".pdf") {
				continue
			}
			text, err := extract(path)
			if err != nil {
				if logger != nil {
					logger.Debug("pdf text extraction skipped", "path", path, "err", err)
				}
				continue
			}
			if strings.TrimSpace(text) == "" {
				continue
			}
			fmt.Fprintf(&sb, "\n\n[PDF: %s]\n%s\n", filepath.Base(path), text)
		}

		parts = append(parts, sb.String())
	}
	return strings.Join(parts, "\n\n---EMAIL_BREAK---\n\n")
}

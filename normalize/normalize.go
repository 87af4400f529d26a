// Package normalize converts raw store items into canonical records, saving
// per-message text files and allow-listed attachments under the run directory.
package normalize

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/emersion/go-message/mail"

	"github.com/hwen/policy-digest/mailstore"
	"github.com/hwen/policy-digest/model"
	"github.com/hwen/policy-digest/output"
	"github.com/hwen/policy-digest/stats"
)

// Document attachments worth keeping. Images and mail-embedded message
// formats are skipped: images add noise, .eml/.emz invite recursion.
var allowedAttachmentExts = map[string]bool{
	".pdf":  true,
	".doc":  true,
	".docx": true,
	".xls":  true,
	".xlsx": true,
	".ppt":  true,
	".pptx": true,
	".txt":  true,
	".csv":  true,
}

const maxSafeSubjectLen = 100

// Normalizer turns one mailstore.Item at a time into a model.Record. A
// malformed item yields a partial record and a warning, never an abort.
type Normalizer struct {
	outDir    string
	logger    *slog.Logger
	collector *stats.Collector
}

func New(outDir string, logger *slog.Logger, collector *stats.Collector) *Normalizer {
	return &Normalizer{outDir: outDir, logger: logger, collector: collector}
}

// Record normalizes item. The effective time prefers the parsed header Date
// over the store received time; the body prefers text/plain with a stripped
// HTML fallback.
func (n *Normalizer) Record(item mailstore.Item) model.Record {
	rec := model.Record{
		ProvenanceID:  item.ProvenanceID,
		ReceivedAt:    item.ReceivedAt,
		EffectiveTime: item.EffectiveTime(),
		Sender:        item.Sender,
		Subject:       item.Subject,
		DateSource:    model.DateSourceReceived,
	}
	if !item.HeaderDate.IsZero() {
		rec.DateSource = model.DateSourceHeader
	}
	if rec.Subject == "" {
		rec.Subject = "no_subject"
	}

	textBody, htmlBody, attachments, err := parseMIME(item.Raw)
	if err != nil {
		n.warn("unreadable message body; keeping partial record", rec.Subject, err)
		rec.Partial = true
	}
	rec.Body = textBody
	if rec.Body == "" && htmlBody != "" {
		rec.Body = stripHTML(htmlBody)
	}

	stamp := rec.ReceivedAt
	if stamp.IsZero() {
		stamp = rec.EffectiveTime
	}
	baseName := stamp.Format("20060102_150405") + "_" + safeSubject(rec.Subject)

	rec.TextPath = filepath.Join(n.outDir, baseName+".txt")
	preamble := fmt.Sprintf("Subject: %s\nFrom: %s\nReceived: %s\n\n",
		rec.Subject, rec.Sender, rec.EffectiveTime.Format("2006-01-02 15:04:05"))
	if err := output.WriteAtomic(rec.TextPath, []byte(preamble+rec.Body)); err != nil {
		n.warn("saving message text failed", rec.Subject, err)
		rec.TextPath = ""
		rec.Partial = true
	}

	for _, att := range attachments {
		if att.filename == "" {
			continue
		}
		ext := strings.ToLower(filepath.Ext(att.filename))
		if !allowedAttachmentExts[ext] {
			if n.logger != nil {
				n.logger.Debug("skipping non-document attachment", "name", att.filename, "ext", ext)
			}
			continue
		}
		path := filepath.Join(n.outDir, baseName+"_"+filepath.Base(att.filename))
		if err := output.WriteAtomic(path, att.data); err != nil {
			n.warn("saving attachment failed", att.filename, err)
			rec.Partial = true
			continue
		}
		rec.AttachmentPaths = append(rec.AttachmentPaths, path)
		n.collector.AttachmentSaved()
	}

	return rec
}

func (n *Normalizer) warn(msg, subject string, err error) {
	n.collector.Warning()
	if n.logger != nil {
		n.logger.Warn(msg, "subject", subject, "err", err)
	}
}

type attachment struct {
	filename string
	data     []byte
}

// parseMIME walks the message parts, collecting the inline text and HTML
// bodies and the attachment payloads. A message that cannot be opened as
// MIME at all degrades to its raw body text and an error.
func parseMIME(raw []byte) (textBody, htmlBody string, attachments []attachment, err error) {
	if len(raw) == 0 {
		return "", "", nil, fmt.Errorf("empty message")
	}

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		_, body := splitRawMessage(raw)
		return string(body), "", nil, fmt.Errorf("parse message: %w", err)
	}
	defer mr.Close()

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}
			switch {
			case strings.HasPrefix(contentType, "text/plain"):
				if textBody == "" {
					textBody = string(body)
				}
			case strings.HasPrefix(contentType, "text/html"):
				if htmlBody == "" {
					htmlBody = string(body)
				}
			}

		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			data, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}
			attachments = append(attachments, attachment{filename: filename, data: data})
		}
	}

	return textBody, htmlBody, attachments, nil
}

func splitRawMessage(raw []byte) (header, body []byte) {
	if idx := bytes.Index(raw, []byte("\r\n\r\n")); idx >= 0 {
		return raw[:idx], raw[idx+4:]
	}
	if idx := bytes.Index(raw, []byte("\n\n")); idx >= 0 {
		return raw[:idx], raw[idx+2:]
	}
	return raw, nil
}

var (
	scriptStyleRe = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	tagRe         = regexp.MustCompile(`<[^>]*>`)
	spaceRunRe    = regexp.MustCompile(`[ \t]+`)
	blankRunRe    = regexp.MustCompile(`\n{3,}`)
)

func stripHTML(s string) string {
	s = scriptStyleRe.ReplaceAllString(s, " ")
	s = tagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	s = spaceRunRe.ReplaceAllString(s, " ")
	s = blankRunRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// safeSubject keeps a filesystem-friendly slice of the subject.
func safeSubject(subject string) string {
	var b strings.Builder
	for _, r := range subject {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	s := strings.TrimSpace(b.String())
	if len(s) > maxSafeSubjectLen {
		s = s[:maxSafeSubjectLen]
	}
	if s == "" {
		s = "no_subject"
	}
	return s
}

// Package extract pulls the device identity and the attached job log
// payload out of a raw report email.
package extract

import (
	"bytes"
	"errors"
	"io"
	"log"
	"path/filepath"
	"strings"

	gomessage "github.com/emersion/go-message"
	gomail "github.com/emersion/go-message/mail"
	"github.com/printwatch-io/printwatch/internal/registry"
	htmlcharset "golang.org/x/net/html/charset"
)

const (
	defaultBodyLimit       = 256 * 1024
	defaultAttachmentLimit = 8 * 1024 * 1024
)

func init() {
	gomessage.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		return htmlcharset.NewReaderLabel(charset, input)
	}
}

// DeviceMatcher scans body text for a registered device token.
type DeviceMatcher interface {
	MatchBody(body string) (registry.Device, bool)
}

// Extraction is the product of a successfully attributed message.
type Extraction struct {
	Device  registry.Device
	Payload []byte
}

// Extractor locates the plain text body and the first XML attachment
// of a message. Messages without a recognized device token or without
// a payload yield no extraction and are left for the caller to retry
// or inspect.
type Extractor struct {
	logger          *log.Logger
	devices         DeviceMatcher
	bodyLimit       int64
	attachmentLimit int64
}

// Option customizes extractor behavior.
type Option func(*Extractor)

// New builds an extractor over the given device registry.
func New(devices DeviceMatcher, opts ...Option) *Extractor {
	e := &Extractor{
		logger:          log.Default(),
		devices:         devices,
		bodyLimit:       defaultBodyLimit,
		attachmentLimit: defaultAttachmentLimit,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithLogger overrides the logger used for diagnostics.
func WithLogger(logger *log.Logger) Option {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithBodyLimit caps how many body bytes are scanned for tokens.
func WithBodyLimit(limit int64) Option {
	return func(e *Extractor) {
		if limit > 0 {
			e.bodyLimit = limit
		}
	}
}

// WithAttachmentLimit caps how many payload bytes are buffered.
func WithAttachmentLimit(limit int64) Option {
	return func(e *Extractor) {
		if limit > 0 {
			e.attachmentLimit = limit
		}
	}
}

// Extract parses a raw message and returns the owning device plus the
// payload bytes. The second return is false when the message has no
// registered device token or carries no XML payload.
func (e *Extractor) Extract(raw []byte) (*Extraction, bool) {
	if e == nil || e.devices == nil || len(raw) == 0 {
		return nil, false
	}
	body, payload := e.walkMessage(raw)
	if body == "" {
		return nil, false
	}
	device, ok := e.devices.MatchBody(body)
	if !ok {
		return nil, false
	}
	if len(payload) == 0 {
		e.logf("extract: device %s matched but no payload attached", device.EquipmentID)
		return nil, false
	}
	return &Extraction{Device: device, Payload: payload}, true
}

func (e *Extractor) walkMessage(raw []byte) (string, []byte) {
	reader, err := gomail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		e.logf("extract: parse failed: %v", err)
		return "", nil
	}
	var body string
	var payload []byte
	for {
		part, perr := reader.NextPart()
		if errors.Is(perr, io.EOF) {
			break
		}
		if perr != nil {
			e.logf("extract: read part failed: %v", perr)
			break
		}
		switch header := part.Header.(type) {
		case *gomail.InlineHeader:
			mimeType := e.partContentType(header.Header)
			switch {
			case isXMLType(mimeType):
				if payload == nil {
					payload = e.readLimited(part.Body, e.attachmentLimit)
				}
			case strings.HasPrefix(mimeType, "text/plain"), mimeType == "":
				if body == "" {
					body = string(e.readLimited(part.Body, e.bodyLimit))
				}
			}
		case *gomail.AttachmentHeader:
			if payload != nil {
				continue
			}
			if !e.isPayloadAttachment(header) {
				continue
			}
			payload = e.readLimited(part.Body, e.attachmentLimit)
		}
	}
	return body, payload
}

func (e *Extractor) isPayloadAttachment(header *gomail.AttachmentHeader) bool {
	if isXMLType(e.partContentType(header.Header)) {
		return true
	}
	filename, err := header.Filename()
	if err != nil {
		return false
	}
	return strings.EqualFold(filepath.Ext(strings.TrimSpace(filename)), ".xml")
}

func (e *Extractor) partContentType(header gomessage.Header) string {
	mimeType, _, err := header.ContentType()
	if err != nil || strings.TrimSpace(mimeType) == "" {
		mimeType = header.Get("Content-Type")
	}
	if semi := strings.Index(mimeType, ";"); semi >= 0 {
		mimeType = mimeType[:semi]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

func (e *Extractor) readLimited(src io.Reader, limit int64) []byte {
	if src == nil {
		return nil
	}
	data, err := io.ReadAll(io.LimitReader(src, limit))
	if err != nil {
		e.logf("extract: read body failed: %v", err)
		return nil
	}
	return data
}

func isXMLType(mimeType string) bool {
	switch {
	case mimeType == "application/xml", mimeType == "text/xml":
		return true
	case strings.HasSuffix(mimeType, "+xml"):
		return true
	default:
		return false
	}
}

func (e *Extractor) logf(format string, args ...any) {
	if e == nil || e.logger == nil {
		return
	}
	e.logger.Printf(format, args...)
}

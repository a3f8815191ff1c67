package extract

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/printwatch-io/printwatch/internal/registry"
	"github.com/stretchr/testify/require"
)

const samplePayload = `<?xml version="1.0"?><kmloginfo:log_information xmlns:kmloginfo="http://www.kyoceramita.com/ws/km-wsdl/log/log_information"></kmloginfo:log_information>`

func testRegistry() *registry.Registry {
	return registry.New([]registry.Device{
		{EquipmentID: "prn-hq-01-mfp", ModelName: "ECOSYS M5521cdn", SerialNumber: "AAA111"},
	})
}

func buildReportMessage(body, attachmentType, filename, payload string) string {
	encoded := base64.StdEncoding.EncodeToString([]byte(payload))
	return strings.Join([]string{
		"From: device@example.com",
		"Subject: Counter report",
		"MIME-Version: 1.0",
		"Content-Type: multipart/mixed; boundary=report",
		"",
		"--report",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
		"--report",
		"Content-Type: " + attachmentType,
		"Content-Transfer-Encoding: base64",
		"Content-Disposition: attachment; filename=\"" + filename + "\"",
		"",
		encoded,
		"--report--",
	}, "\r\n")
}

func TestExtractAttributesDeviceAndPayload(t *testing.T) {
	e := New(testRegistry())
	raw := buildReportMessage("Report from prn-hq-01-mfp attached.", "application/xml", "joblog.xml", samplePayload)

	ext, ok := e.Extract([]byte(raw))
	require.True(t, ok)
	require.Equal(t, "prn-hq-01-mfp", ext.Device.EquipmentID)
	require.Equal(t, "ECOSYS M5521cdn", ext.Device.ModelName)
	require.Equal(t, samplePayload, string(ext.Payload))
}

func TestExtractMatchesByXMLFilename(t *testing.T) {
	e := New(testRegistry())
	raw := buildReportMessage("prn-hq-01-mfp weekly log", "application/octet-stream", "joblog.XML", samplePayload)

	ext, ok := e.Extract([]byte(raw))
	require.True(t, ok)
	require.Equal(t, samplePayload, string(ext.Payload))
}

func TestExtractIgnoresUnknownDevice(t *testing.T) {
	e := New(testRegistry())
	raw := buildReportMessage("Report from prn-other-99 attached.", "application/xml", "joblog.xml", samplePayload)

	ext, ok := e.Extract([]byte(raw))
	require.False(t, ok)
	require.Nil(t, ext)
}

func TestExtractRequiresPayload(t *testing.T) {
	e := New(testRegistry())
	raw := strings.Join([]string{
		"From: device@example.com",
		"Subject: Counter report",
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"Report from prn-hq-01-mfp, attachment forgotten.",
	}, "\r\n")

	ext, ok := e.Extract([]byte(raw))
	require.False(t, ok)
	require.Nil(t, ext)
}

func TestExtractSinglePartBodyStillMatchesToken(t *testing.T) {
	// A single-part message has a searchable body but can carry no
	// attachment, so extraction reports nothing rather than a
	// half-attributed message.
	e := New(testRegistry())
	raw := strings.Join([]string{
		"From: device@example.com",
		"Content-Type: text/plain",
		"",
		"prn-hq-01-mfp",
	}, "\r\n")

	_, ok := e.Extract([]byte(raw))
	require.False(t, ok)
}

func TestExtractSkipsNonXMLAttachments(t *testing.T) {
	e := New(testRegistry())
	raw := buildReportMessage("prn-hq-01-mfp report", "application/pdf", "report.pdf", "%PDF-1.4")

	_, ok := e.Extract([]byte(raw))
	require.False(t, ok)
}

func TestExtractTakesFirstXMLAttachment(t *testing.T) {
	e := New(testRegistry())
	second := `<?xml version="1.0"?><other/>`
	raw := strings.Join([]string{
		"From: device@example.com",
		"MIME-Version: 1.0",
		"Content-Type: multipart/mixed; boundary=report",
		"",
		"--report",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"prn-hq-01-mfp",
		"--report",
		"Content-Type: application/xml",
		"Content-Disposition: attachment; filename=\"first.xml\"",
		"",
		samplePayload,
		"--report",
		"Content-Type: application/xml",
		"Content-Disposition: attachment; filename=\"second.xml\"",
		"",
		second,
		"--report--",
	}, "\r\n")

	ext, ok := e.Extract([]byte(raw))
	require.True(t, ok)
	require.Equal(t, samplePayload, string(ext.Payload))
}

func TestExtractUnparsableMessage(t *testing.T) {
	e := New(testRegistry())

	_, ok := e.Extract([]byte("\x00\x01 not a mail message"))
	require.False(t, ok)

	_, ok = e.Extract(nil)
	require.False(t, ok)
}

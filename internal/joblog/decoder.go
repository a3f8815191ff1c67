// Package joblog decodes the XML job accounting payload that devices
// attach to their usage report emails.
package joblog

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Namespace is the schema the devices emit their job logs under.
const Namespace = "http://www.kyoceramita.com/ws/km-wsdl/log/log_information"

const entryElement = "print_job_log"

// JobRecord is one normalized job log entry. Optional text fields are
// empty strings, optional counters zero; timestamps are absolute UTC.
type JobRecord struct {
	JobNumber                      int
	JobKind                        string
	JobName                        string
	JobResult                      string
	JobResultDetail                int
	StartTime                      time.Time
	EndTime                        time.Time
	AccountName                    string
	AccountCode                    string
	Pages                          int
	UserName                       string
	LoginID                        string
	OperationExecutionerLoginID    string
	OperationExecutionerDomainName string
	PrintColorMode                 string
	CompleteCopies                 int
	Copies                         int
	CompletePages                  int
}

// Result carries the decodable entries of a payload alongside the
// entries that failed. Malformed entries never abort the document.
type Result struct {
	Jobs      []JobRecord
	Malformed []*EntryError
}

type entryXML struct {
	Common *commonXML `xml:"common"`
	Detail *detailXML `xml:"detail"`
}

type commonXML struct {
	JobNumber                      *string  `xml:"job_number"`
	JobKind                        *string  `xml:"job_kind"`
	JobName                        *string  `xml:"job_name"`
	JobResult                      *string  `xml:"job_result"`
	JobResultDetail                *string  `xml:"job_result_detail"`
	StartTime                      *timeXML `xml:"start_time"`
	EndTime                        *timeXML `xml:"end_time"`
	AccountName                    *string  `xml:"account_name"`
	AccountCode                    *string  `xml:"account_code"`
	Pages                          *string  `xml:"pages"`
	UserName                       *string  `xml:"user_name"`
	LoginID                        *string  `xml:"login_id"`
	OperationExecutionerLoginID    *string  `xml:"operation_executioner_login_id"`
	OperationExecutionerDomainName *string  `xml:"operation_executioner_domain_name"`
}

type detailXML struct {
	PrintColorMode *string `xml:"print_color_mode"`
	CompleteCopies *string `xml:"complete_copies"`
	Copies         *string `xml:"copies"`
	CompletePages  *string `xml:"complete_pages"`
}

type timeXML struct {
	Year   *string `xml:"year"`
	Month  *string `xml:"month"`
	Day    *string `xml:"day"`
	Hour   *string `xml:"hour"`
	Minute *string `xml:"minute"`
	Second *string `xml:"second"`
}

// Decode parses a job log document into normalized records. Entries
// with missing or malformed required fields are reported in
// Result.Malformed while their siblings decode normally. A document
// that is not parseable XML fails entirely with ErrMalformedPayload.
func Decode(payload []byte) (Result, error) {
	var res Result
	if len(bytes.TrimSpace(payload)) == 0 {
		return res, fmt.Errorf("%w: empty document", ErrMalformedPayload)
	}

	dec := xml.NewDecoder(bytes.NewReader(payload))
	index := 0
	sawElement := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		sawElement = true
		if start.Name.Local != entryElement || start.Name.Space != Namespace {
			continue
		}
		var raw entryXML
		if err := dec.DecodeElement(&raw, &start); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		record, entryErr := convertEntry(index, &raw)
		if entryErr != nil {
			res.Malformed = append(res.Malformed, entryErr)
		} else {
			res.Jobs = append(res.Jobs, record)
		}
		index++
	}
	// Token tolerates bare character data at the top level, so prose
	// with no markup reaches EOF without an error.
	if !sawElement {
		return Result{}, fmt.Errorf("%w: no XML content", ErrMalformedPayload)
	}
	return res, nil
}

func convertEntry(index int, raw *entryXML) (JobRecord, *EntryError) {
	var rec JobRecord
	if raw.Common == nil {
		return rec, entryErr(index, "common", errMissing)
	}
	c := raw.Common

	var err *EntryError
	if rec.JobNumber, err = requiredInt(index, "job_number", c.JobNumber); err != nil {
		return rec, err
	}
	if rec.JobKind, err = requiredString(index, "job_kind", c.JobKind); err != nil {
		return rec, err
	}
	if rec.JobName, err = requiredString(index, "job_name", c.JobName); err != nil {
		return rec, err
	}
	if rec.JobResult, err = requiredString(index, "job_result", c.JobResult); err != nil {
		return rec, err
	}
	if rec.JobResultDetail, err = requiredInt(index, "job_result_detail", c.JobResultDetail); err != nil {
		return rec, err
	}
	if rec.StartTime, err = requiredTime(index, "start_time", c.StartTime); err != nil {
		return rec, err
	}
	if rec.EndTime, err = requiredTime(index, "end_time", c.EndTime); err != nil {
		return rec, err
	}
	if rec.Pages, err = requiredInt(index, "pages", c.Pages); err != nil {
		return rec, err
	}
	if rec.Pages < 0 {
		return rec, entryErr(index, "pages", fmt.Errorf("negative count %d", rec.Pages))
	}

	rec.AccountName = optionalString(c.AccountName)
	rec.AccountCode = optionalString(c.AccountCode)
	rec.UserName = optionalString(c.UserName)
	rec.LoginID = optionalString(c.LoginID)
	rec.OperationExecutionerLoginID = optionalString(c.OperationExecutionerLoginID)
	rec.OperationExecutionerDomainName = optionalString(c.OperationExecutionerDomainName)

	if d := raw.Detail; d != nil {
		rec.PrintColorMode = optionalString(d.PrintColorMode)
		if rec.CompleteCopies, err = optionalInt(index, "complete_copies", d.CompleteCopies); err != nil {
			return rec, err
		}
		if rec.Copies, err = optionalInt(index, "copies", d.Copies); err != nil {
			return rec, err
		}
		if rec.CompletePages, err = optionalInt(index, "complete_pages", d.CompletePages); err != nil {
			return rec, err
		}
	}
	return rec, nil
}

func requiredString(index int, field string, v *string) (string, *EntryError) {
	if v == nil {
		return "", entryErr(index, field, errMissing)
	}
	return *v, nil
}

func requiredInt(index int, field string, v *string) (int, *EntryError) {
	if v == nil {
		return 0, entryErr(index, field, errMissing)
	}
	n, err := strconv.Atoi(strings.TrimSpace(*v))
	if err != nil {
		return 0, entryErr(index, field, err)
	}
	return n, nil
}

func optionalString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func optionalInt(index int, field string, v *string) (int, *EntryError) {
	if v == nil || strings.TrimSpace(*v) == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(*v))
	if err != nil {
		return 0, entryErr(index, field, err)
	}
	return n, nil
}

// requiredTime rebuilds an absolute timestamp from the device's field
// encoding: year is an offset from 1900 and month is zero based, the
// remaining fields are literal. Devices report these in UTC.
func requiredTime(index int, field string, v *timeXML) (time.Time, *EntryError) {
	if v == nil {
		return time.Time{}, entryErr(index, field, errMissing)
	}
	parts := []struct {
		name  string
		value *string
	}{
		{"year", v.Year},
		{"month", v.Month},
		{"day", v.Day},
		{"hour", v.Hour},
		{"minute", v.Minute},
		{"second", v.Second},
	}
	nums := make([]int, len(parts))
	for i, p := range parts {
		if p.value == nil {
			return time.Time{}, entryErr(index, field+"."+p.name, errMissing)
		}
		n, err := strconv.Atoi(strings.TrimSpace(*p.value))
		if err != nil {
			return time.Time{}, entryErr(index, field+"."+p.name, err)
		}
		nums[i] = n
	}
	return time.Date(nums[0]+1900, time.Month(nums[1]+1), nums[2], nums[3], nums[4], nums[5], 0, time.UTC), nil
}

package otp

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Provider function ids.
const (
	fnGenerate = "GEN"
	fnValidate = "VAL"
)

// buildEnvelope assembles the provider's XML request. The certificate is an
// opaque credential forwarded verbatim; this service does no PKI handling.
func buildEnvelope(fn, cellNumber, countryCode, queueName, passcode, certificate string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString("<otp_request>")
	field(&b, "otp_function_id", fn)
	field(&b, "otp_cell_no", cellNumber)
	field(&b, "otp_country_code", countryCode)
	field(&b, "otp_qname", queueName)
	if fn == fnValidate {
		field(&b, "otp_otp", passcode)
	}
	if certificate != "" {
		field(&b, "otp_certificate", certificate)
	}
	b.WriteString("</otp_request>")
	return b.String()
}

func field(b *strings.Builder, tag, value string) {
	fmt.Fprintf(b, "<%s>%s</%s>", tag, xmlEscape(value), tag)
}

var xmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

func xmlEscape(s string) string { return xmlEscaper.Replace(s) }

// The response parser is deliberately thin: only the response code and the
// queue name are extracted, by pattern, and nothing downstream ever sees
// raw XML. Full deserialization of the provider envelope is explicitly out
// of scope.
var (
	respCodeRe = regexp.MustCompile(`<vers_v_response_code>\s*([^<]*?)\s*</vers_v_response_code>`)
	qnameRe    = regexp.MustCompile(`<otp_qname>\s*([^<]*?)\s*</otp_qname>`)

	errNoResponseCode = errors.New("otp response missing vers_v_response_code")
)

// parseResponse extracts (responseCode, queueName) from the provider body.
// A missing response code is an error; a missing qname is legal on
// validation responses.
func parseResponse(body string) (code, queueName string, err error) {
	m := respCodeRe.FindStringSubmatch(body)
	if m == nil {
		return "", "", errNoResponseCode
	}
	code = m[1]
	if qm := qnameRe.FindStringSubmatch(body); qm != nil {
		queueName = qm[1]
	}
	return code, queueName, nil
}

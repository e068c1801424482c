package at

import (
	"bytes"
	"encoding/hex"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/warthog618/sms/encoding/ucs2"
)

// SMSEntry is one message pulled out of an AT+CMGL listing.
type SMSEntry struct {
	Sender    string `json:"sender"`
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
}

// SMSCount is the used/total pair reported for SIM message storage.
type SMSCount struct {
	Used  int `json:"used"`
	Total int `json:"total"`
}

// PINState is the SIM lock status reported by AT+CPIN?.
type PINState int

const (
	PINUnrecognized PINState = iota
	PINReady
	PINLocked
)

// ============================================================================
// Response normalization
// ============================================================================

// Normalize turns a raw reply into the text the field parsers work on:
// surrounding whitespace trimmed, every "\r\nOK" removed, trailing CR/LF
// dropped. A reply that is not valid UTF-8 comes back as its hex dump with
// ok=false.
func Normalize(raw []byte) (string, bool) {
	if !utf8.Valid(raw) {
		return hex.EncodeToString(raw), false
	}
	s := strings.TrimSpace(string(raw))
	s = strings.ReplaceAll(s, "\r\nOK", "")
	s = strings.TrimRight(s, "\r\n")
	return s, true
}

// Lenient decodes a reply dropping invalid UTF-8 sequences, then trims it.
// Used for status checks where a stray byte must not hide the status text.
func Lenient(raw []byte) string {
	return strings.TrimSpace(strings.ToValidUTF8(string(raw), ""))
}

// FirstLine returns the text before the first CRLF.
func FirstLine(s string) string {
	if i := strings.Index(s, "\r\n"); i >= 0 {
		return s[:i]
	}
	return s
}

// IsOK reports whether the reply carries an OK anywhere.
func IsOK(raw []byte) bool {
	return bytes.Contains(raw, []byte("OK"))
}

// PINStatus classifies an AT+CPIN? reply. A SIM PIN prompt wins over READY;
// anything else, including an empty reply, is unrecognized.
func PINStatus(resp string) PINState {
	switch {
	case strings.Contains(resp, StatusSIMPIN):
		return PINLocked
	case strings.Contains(resp, StatusReady):
		return PINReady
	default:
		return PINUnrecognized
	}
}

// ============================================================================
// ICCID
// ============================================================================

// ICCID decodes an AT+CRSM read of EF_ICCID.
//
// Expected shape: `+CRSM: <sw1>,<sw2>,"<hex payload>"`. The payload is the
// third comma separated field with quotes trimmed; characters [8:len-2] are
// kept, non-digits dropped, the first ten digits taken and each adjacent
// pair swapped (SIM storage keeps ICCID digits nibble swapped). Anything
// that does not produce a positive integer yields ok=false.
func ICCID(resp string) (int64, bool) {
	parts := strings.Split(resp, ",")
	if len(parts) < 3 {
		return 0, false
	}
	payload := strings.Trim(parts[2], `"`)
	if len(payload) < 10 {
		return 0, false
	}
	payload = payload[8 : len(payload)-2]

	var digits strings.Builder
	for _, c := range payload {
		if c >= '0' && c <= '9' {
			digits.WriteRune(c)
			if digits.Len() == 10 {
				break
			}
		}
	}
	if digits.Len() == 0 {
		return 0, false
	}

	n, err := strconv.ParseInt(SwapNibbles(digits.String()), 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return n, true
}

// SwapNibbles reverses every adjacent pair of characters. A trailing odd
// character stays in place.
func SwapNibbles(digits string) string {
	b := []byte(digits)
	for i := 0; i+1 < len(b); i += 2 {
		b[i], b[i+1] = b[i+1], b[i]
	}
	return string(b)
}

// ============================================================================
// SMS
// ============================================================================

// DecodeSMSText decodes a hex encoded UCS2 (UTF-16BE) body. Trailing NUL
// padding and embedded newlines are removed. Bad hex, an odd byte count or
// an unpaired surrogate yields ok=false so the caller keeps the raw body.
func DecodeSMSText(payload string) (string, bool) {
	raw, err := hex.DecodeString(payload)
	if err != nil || !pairedSurrogates(raw) {
		return "", false
	}
	runes, err := ucs2.Decode(raw)
	if err != nil {
		return "", false
	}
	text := strings.TrimRight(string(runes), "\x00")
	text = strings.ReplaceAll(text, "\n", "")
	return text, true
}

// pairedSurrogates reports whether every surrogate in a UTF-16BE buffer is
// part of a high/low pair. ucs2.Decode substitutes U+FFFD for a broken pair
// without an error, which would lose text.
func pairedSurrogates(raw []byte) bool {
	if len(raw)%2 != 0 {
		return false
	}
	for i := 0; i < len(raw); i += 2 {
		u := uint16(raw[i])<<8 | uint16(raw[i+1])
		switch {
		case u >= 0xDC00 && u <= 0xDFFF:
			return false
		case u >= 0xD800 && u <= 0xDBFF:
			if i+3 >= len(raw) {
				return false
			}
			next := uint16(raw[i+2])<<8 | uint16(raw[i+3])
			if next < 0xDC00 || next > 0xDFFF {
				return false
			}
			i += 2
		}
	}
	return true
}

// ParseSMSList splits an AT+CMGL="ALL" listing into entries.
//
// Each record starts with "+CMGL:"; its header line is comma separated with
// the sender at field 2 and the timestamp at field 4 (quotes removed, empty
// when missing), and the next line is the body. Bodies that do not decode
// as UCS2 hex are kept verbatim. Records with no body line are returned in
// malformed for the caller to report.
func ParseSMSList(resp string) (entries []SMSEntry, malformed []string) {
	entries = []SMSEntry{}
	segments := strings.Split(resp, "+CMGL:")
	for _, seg := range segments[1:] {
		lines := strings.Split(seg, "\r\n")
		if len(lines) < 2 {
			malformed = append(malformed, seg)
			continue
		}

		header := strings.Split(lines[0], ",")
		entry := SMSEntry{}
		if len(header) > 2 {
			entry.Sender = strings.ReplaceAll(header[2], `"`, "")
		}
		if len(header) > 4 {
			entry.Timestamp = strings.ReplaceAll(header[4], `"`, "")
		}

		body := strings.TrimSpace(lines[1])
		if text, ok := DecodeSMSText(body); ok {
			entry.Message = text
		} else {
			entry.Message = body
		}
		entries = append(entries, entry)
	}
	return entries, malformed
}

// ParseSMSCount parses a `<label>:<used>,<total>,...` storage reply such as the
// one AT+CPMS="SM" returns. A quoted storage name right after the colon
// (`+CPMS: "SM",3,50,...`) is skipped.
func ParseSMSCount(resp string) (SMSCount, bool) {
	parts := strings.Split(resp, ",")
	label := strings.SplitN(parts[0], ":", 3)
	if len(label) < 2 {
		return SMSCount{}, false
	}
	fields := append([]string{label[1]}, parts[1:]...)
	if first := strings.TrimSpace(fields[0]); strings.HasPrefix(first, `"`) {
		fields = fields[1:]
	}
	if len(fields) < 2 {
		return SMSCount{}, false
	}

	used, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil {
		return SMSCount{}, false
	}
	total, err := strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil {
		return SMSCount{}, false
	}
	return SMSCount{Used: used, Total: total}, true
}

// ============================================================================
// USSD, operator, phonebook
// ============================================================================

// USSDText returns the quoted text of a "+CUSD:" reply, the first span
// between double quotes.
func USSDText(resp string) (string, bool) {
	if !strings.Contains(resp, "CUSD:") {
		return "", false
	}
	parts := strings.Split(resp, `"`)
	if len(parts) < 2 {
		return "", false
	}
	return parts[1], true
}

// Operator returns the operator name from a "+COPS:" reply, the third comma
// separated field with quotes removed (`+COPS: 0,0,"MTS RUS",7`).
func Operator(resp string) (string, bool) {
	if !strings.Contains(resp, "+COPS:") {
		return "", false
	}
	parts := strings.Split(resp, ",")
	if len(parts) < 3 {
		return "", false
	}
	return strings.ReplaceAll(parts[2], `"`, ""), true
}

// MSISDN extracts the subscriber number from a late "+CUSD:" reply of the
// form `+CUSD: 0,"MSISDN: 79991234567",15`. The quoted text must start with
// "MSISDN:"; the value is what follows the first colon, trimmed.
func MSISDN(resp string) (string, bool) {
	if !strings.Contains(resp, "+CUSD:") {
		return "", false
	}
	parts := strings.Split(resp, `"`)
	if len(parts) < 2 || !strings.HasPrefix(parts[1], "MSISDN:") {
		return "", false
	}
	fields := strings.Split(parts[1], ":")
	return strings.TrimSpace(fields[1]), true
}

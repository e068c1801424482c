// Package csvimport reads SIM credentials from semicolon separated files
// such as the ones exported from the SIM supplier's portal:
//
//	ICCID;PIN
//	1234567890;1234
package csvimport

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"simscan/internal/storage"
)

// ErrNoHeader is returned for an empty file.
var ErrNoHeader = errors.New("csv file has no header row")

// Parse reads credentials from r. The first row is a header; ICCID and PIN
// columns are located by name and default to the first two columns. Any bad
// row fails the whole import with an error naming the row, counting data
// rows from 1.
func Parse(r io.Reader) ([]storage.Credential, error) {
	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	iccidCol, pinCol := columns(header)

	var creds []storage.Credential
	for row := 1; ; row++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		if blank(record) {
			continue
		}
		if len(record) <= iccidCol || len(record) <= pinCol {
			return nil, fmt.Errorf("row %d: %w: missing ICCID or PIN", row, storage.ErrInvalidCredential)
		}

		iccid, err := strconv.ParseInt(strings.TrimSpace(record[iccidCol]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w: ICCID %q is not an integer", row, storage.ErrInvalidCredential, record[iccidCol])
		}
		cred := storage.Credential{ICCID: iccid, PIN: strings.TrimSpace(record[pinCol])}
		if err := cred.Validate(); err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		creds = append(creds, cred)
	}
	return creds, nil
}

func columns(header []string) (iccid, pin int) {
	iccid, pin = 0, 1
	for i, name := range header {
		switch strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))) {
		case "ICCID":
			iccid = i
		case "PIN":
			pin = i
		}
	}
	return iccid, pin
}

func blank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

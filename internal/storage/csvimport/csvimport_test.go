package csvimport

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"simscan/internal/storage"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []storage.Credential
	}{
		{
			name: "default columns",
			in:   "ICCID;PIN\n1234567890;1234\n1122334455;87654321\n",
			want: []storage.Credential{{ICCID: 1234567890, PIN: "1234"}, {ICCID: 1122334455, PIN: "87654321"}},
		},
		{
			name: "columns located by header",
			in:   "pin;comment;iccid\r\n0000;spare;1234567890\r\n",
			want: []storage.Credential{{ICCID: 1234567890, PIN: "0000"}},
		},
		{
			name: "byte order mark and blank lines",
			in:   "\ufeffICCID;PIN\n\n1234567890; 1234\n;\n",
			want: []storage.Credential{{ICCID: 1234567890, PIN: "1234"}},
		},
		{
			name: "header only",
			in:   "ICCID;PIN\n",
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(strings.NewReader(tt.in))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("got %+v want %+v", got, tt.want)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantRow string
	}{
		{"non numeric iccid", "ICCID;PIN\n1234567890;1234\n89ABC;1234\n", "row 2"},
		{"short pin", "ICCID;PIN\n1234567890;12\n", "row 1"},
		{"missing pin column", "ICCID;PIN\n1234567890\n", "row 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.in))
			if !errors.Is(err, storage.ErrInvalidCredential) {
				t.Fatalf("got %v want ErrInvalidCredential", err)
			}
			if !strings.HasPrefix(err.Error(), tt.wantRow+":") {
				t.Fatalf("error %q does not name %s", err, tt.wantRow)
			}
		})
	}

	if _, err := Parse(strings.NewReader("")); !errors.Is(err, ErrNoHeader) {
		t.Fatalf("got %v want ErrNoHeader", err)
	}
}

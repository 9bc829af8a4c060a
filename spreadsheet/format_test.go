package spreadsheet

import (
	"bytes"
	"testing"

	"github.com/goliatone/go-certidigital/core"
	goerrors "github.com/goliatone/go-errors"
)

func TestDetectFormat(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		want Format
	}{
		{name: "xlsx", data: []byte("PK\x03\x04rest"), want: FormatXLSX},
		{name: "xls", data: append(append([]byte(nil), ole2Magic...), 0x00, 0x01), want: FormatXLS},
		{name: "html", data: []byte("<html><table></table></html>"), want: FormatUnknown},
		{name: "empty", data: nil, want: FormatUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DetectFormat(tc.data); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
	if DetectFormat(workbook(t, templateRows).Bytes()) != FormatXLSX {
		t.Fatalf("expected excelize output to be detected as xlsx")
	}
}

func TestFillRecipients_UnknownTemplateFormatHasDedicatedCode(t *testing.T) {
	_, err := FillRecipients(bytes.NewBufferString("<html></html>"), workbook(t, recipientRows), &bytes.Buffer{}, DefaultOptions())
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.TextCode != ErrorUnsupportedFormat {
		t.Fatalf("expected unsupported format code, got %v", err)
	}
}

func TestFillRecipients_CorruptXLSTemplateIsBadInput(t *testing.T) {
	truncated := append(append([]byte(nil), ole2Magic...), bytes.Repeat([]byte{0xFF}, 24)...)
	_, err := FillRecipients(bytes.NewReader(truncated), workbook(t, recipientRows), &bytes.Buffer{}, DefaultOptions())
	if !core.IsCategory(err, goerrors.CategoryBadInput) {
		t.Fatalf("expected bad input for a corrupt xls template, got %v", err)
	}
}

func TestTrimTrailingEmpty(t *testing.T) {
	rows := trimTrailingEmpty([][]string{{"a"}, nil, {"", ""}})
	if len(rows) != 1 || rows[0][0] != "a" {
		t.Fatalf("unexpected rows %v", rows)
	}
}

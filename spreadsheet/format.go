package spreadsheet

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/extrame/xls"
	"github.com/goliatone/go-certidigital/core"
	goerrors "github.com/goliatone/go-errors"
	"github.com/xuri/excelize/v2"
)

const ErrorUnsupportedFormat = "SPREADSHEET_UNSUPPORTED_FORMAT"

// Format of a workbook, detected from its leading bytes.
type Format string

const (
	FormatXLSX    Format = "xlsx"
	FormatXLS     Format = "xls"
	FormatUnknown Format = "unknown"
)

var (
	zipMagic  = []byte{'P', 'K', 0x03, 0x04}
	ole2Magic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// DetectFormat tells OOXML (zip) workbooks from BIFF (OLE2) ones.
func DetectFormat(data []byte) Format {
	switch {
	case bytes.HasPrefix(data, zipMagic):
		return FormatXLSX
	case bytes.HasPrefix(data, ole2Magic):
		return FormatXLS
	default:
		return FormatUnknown
	}
}

func readFirstSheet(reader io.Reader, label string) ([][]string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, wrapSpreadsheetError(err, "spreadsheet: read "+label+" workbook")
	}
	switch DetectFormat(data) {
	case FormatXLSX:
		return readXLSX(data, label)
	case FormatXLS:
		return readXLS(data, label)
	default:
		return nil, goerrors.New("spreadsheet: "+label+" is neither an .xlsx nor an .xls workbook", goerrors.CategoryBadInput).
			WithCode(http.StatusUnsupportedMediaType).
			WithTextCode(ErrorUnsupportedFormat).
			WithMetadata(map[string]any{"workbook": label})
	}
}

func readXLSX(data []byte, label string) ([][]string, error) {
	book, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, openError(err, label)
	}
	defer book.Close()
	sheet := book.GetSheetName(0)
	if sheet == "" {
		return nil, noSheetsError(label)
	}
	rows, err := book.GetRows(sheet)
	if err != nil {
		return nil, wrapSpreadsheetError(err, "spreadsheet: read "+label+" rows")
	}
	return rows, nil
}

func readXLS(data []byte, label string) (rows [][]string, err error) {
	// extrame/xls panics on truncated or corrupt streams.
	defer func() {
		if recovered := recover(); recovered != nil {
			rows = nil
			err = openError(fmt.Errorf("%v", recovered), label)
		}
	}()

	book, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, openError(err, label)
	}
	if book == nil {
		return nil, noSheetsError(label)
	}
	sheet := book.GetSheet(0)
	if sheet == nil {
		return nil, noSheetsError(label)
	}
	for index := 0; index <= int(sheet.MaxRow); index++ {
		row := sheet.Row(index)
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		values := make([]string, row.LastCol())
		for col := row.FirstCol(); col < row.LastCol(); col++ {
			values[col] = row.Col(col)
		}
		rows = append(rows, values)
	}
	return trimTrailingEmpty(rows), nil
}

func trimTrailingEmpty(rows [][]string) [][]string {
	for len(rows) > 0 {
		last := rows[len(rows)-1]
		empty := true
		for _, value := range last {
			if value != "" {
				empty = false
				break
			}
		}
		if !empty {
			break
		}
		rows = rows[:len(rows)-1]
	}
	return rows
}

func openError(err error, label string) error {
	return goerrors.Wrap(err, goerrors.CategoryBadInput, "spreadsheet: open "+label+" workbook").
		WithCode(http.StatusUnprocessableEntity).
		WithTextCode(core.ServiceErrorBadInput)
}

func noSheetsError(label string) error {
	return spreadsheetError("spreadsheet: "+label+" workbook has no sheets", goerrors.CategoryBadInput, http.StatusUnprocessableEntity, "")
}

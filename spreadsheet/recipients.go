package spreadsheet

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/goliatone/go-certidigital/core"
	goerrors "github.com/goliatone/go-errors"
	"github.com/xuri/excelize/v2"
)

const (
	DefaultSheetName = "data"

	ErrorRecipientsMissing = "SPREADSHEET_RECIPIENTS_MISSING"
)

type Options struct {
	// SkipRows header rows of the recipients workbook that are not data.
	SkipRows int
	// StartRow is the zero based output row of the first recipient.
	StartRow int
	// SheetName of the output workbook.
	SheetName string
}

func DefaultOptions() Options {
	return Options{
		SkipRows:  core.DefaultRecipientsSkipRows,
		StartRow:  core.DefaultRecipientsStartRow,
		SheetName: DefaultSheetName,
	}
}

// OptionsFromConfig takes the row layout from the issuance config.
func OptionsFromConfig(cfg core.IssuanceConfig) Options {
	opts := DefaultOptions()
	opts.SkipRows = cfg.RecipientsSkipRows
	opts.StartRow = cfg.RecipientsStartRow
	return opts
}

type Result struct {
	TemplateRows  int `json:"template_rows"`
	RecipientRows int `json:"recipient_rows"`
}

// FillRecipients copies every row of the first sheet of template into a new
// workbook, then writes the recipient rows (after SkipRows) from StartRow on,
// overwriting template rows that overlap.
func FillRecipients(template io.Reader, recipients io.Reader, out io.Writer, opts Options) (Result, error) {
	if template == nil || recipients == nil || out == nil {
		return Result{}, spreadsheetError("spreadsheet: template, recipients and output are required", goerrors.CategoryBadInput, http.StatusBadRequest, "")
	}
	opts = normalizeOptions(opts)

	templateRows, err := readFirstSheet(template, "template")
	if err != nil {
		return Result{}, err
	}
	recipientRows, err := readFirstSheet(recipients, "recipients")
	if err != nil {
		return Result{}, err
	}
	if len(recipientRows) <= opts.SkipRows {
		return Result{}, spreadsheetError(
			fmt.Sprintf("spreadsheet: recipients workbook has no rows after skipping %d", opts.SkipRows),
			goerrors.CategoryBadInput,
			http.StatusUnprocessableEntity,
			ErrorRecipientsMissing,
		)
	}
	recipientRows = recipientRows[opts.SkipRows:]

	output := excelize.NewFile()
	defer output.Close()
	defaultSheet := output.GetSheetName(0)
	if defaultSheet != opts.SheetName {
		if err := output.SetSheetName(defaultSheet, opts.SheetName); err != nil {
			return Result{}, wrapSpreadsheetError(err, "spreadsheet: name output sheet")
		}
	}

	if err := writeRows(output, opts.SheetName, 0, templateRows); err != nil {
		return Result{}, err
	}
	if err := writeRows(output, opts.SheetName, opts.StartRow, recipientRows); err != nil {
		return Result{}, err
	}
	if err := output.Write(out); err != nil {
		return Result{}, wrapSpreadsheetError(err, "spreadsheet: write output workbook")
	}
	return Result{TemplateRows: len(templateRows), RecipientRows: len(recipientRows)}, nil
}

// FillRecipientsFile is FillRecipients over file paths. The output directory
// is created when missing.
func FillRecipientsFile(templatePath string, recipientsPath string, outPath string, opts Options) (Result, error) {
	template, err := os.Open(templatePath)
	if err != nil {
		return Result{}, wrapSpreadsheetError(err, "spreadsheet: open template")
	}
	defer template.Close()
	recipients, err := os.Open(recipientsPath)
	if err != nil {
		return Result{}, wrapSpreadsheetError(err, "spreadsheet: open recipients")
	}
	defer recipients.Close()

	if dir := filepath.Dir(outPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Result{}, wrapSpreadsheetError(err, "spreadsheet: create output directory")
		}
	}
	out, err := os.Create(outPath)
	if err != nil {
		return Result{}, wrapSpreadsheetError(err, "spreadsheet: create output")
	}
	result, err := FillRecipients(template, recipients, out, opts)
	if closeErr := out.Close(); err == nil && closeErr != nil {
		err = wrapSpreadsheetError(closeErr, "spreadsheet: close output")
	}
	return result, err
}

func writeRows(book *excelize.File, sheet string, offset int, rows [][]string) error {
	for rowIndex, row := range rows {
		for colIndex, value := range row {
			if value == "" {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(colIndex+1, offset+rowIndex+1)
			if err != nil {
				return wrapSpreadsheetError(err, "spreadsheet: resolve cell")
			}
			if err := book.SetCellValue(sheet, cell, value); err != nil {
				return wrapSpreadsheetError(err, "spreadsheet: write cell "+cell)
			}
		}
	}
	return nil
}

func normalizeOptions(opts Options) Options {
	if opts.SkipRows < 0 {
		opts.SkipRows = 0
	}
	if opts.StartRow < 0 {
		opts.StartRow = 0
	}
	opts.SheetName = strings.TrimSpace(opts.SheetName)
	if opts.SheetName == "" {
		opts.SheetName = DefaultSheetName
	}
	return opts
}

func spreadsheetError(message string, category goerrors.Category, code int, textCode string) error {
	if textCode == "" {
		textCode = core.TextCodeForCategory(category)
	}
	return goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
}

func wrapSpreadsheetError(err error, message string) error {
	return goerrors.Wrap(err, goerrors.CategoryInternal, message).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.ServiceErrorInternal)
}

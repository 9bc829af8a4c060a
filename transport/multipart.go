package transport

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"path/filepath"
	"strings"
)

const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// MultipartFile streams a single file part without buffering the upload. The
// returned reader must be consumed (or closed) for the writer goroutine to
// finish.
func MultipartFile(field string, fileName string, contentType string, content io.Reader) (io.ReadCloser, string) {
	reader, writer := io.Pipe()
	form := multipart.NewWriter(writer)
	if strings.TrimSpace(contentType) == "" {
		contentType = "application/octet-stream"
	}

	go func() {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(
			`form-data; name=%q; filename=%q`,
			field,
			filepath.Base(fileName),
		))
		header.Set("Content-Type", contentType)
		part, err := form.CreatePart(header)
		if err == nil {
			_, err = io.Copy(part, content)
		}
		if err == nil {
			err = form.Close()
		}
		writer.CloseWithError(err)
	}()

	return reader, form.FormDataContentType()
}

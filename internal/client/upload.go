// upload.go - Multipart file transmission with progress reporting
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
)

// ProgressFunc receives transmission progress as integer percentages.
// Values are monotonically non-decreasing in [0,100]; 100 is delivered
// exactly once, after the server has confirmed the upload. Nothing is
// delivered after a failure.
type ProgressFunc func(percent int)

// UploadResult is the server's confirmation of a stored file.
type UploadResult struct {
	FileID      string   `json:"file_id"`
	Filename    string   `json:"filename"`
	Size        int64    `json:"size"`
	ContentType string   `json:"content_type"`
	Message     string   `json:"message"`
	Warnings    []string `json:"warnings,omitempty"`
	JobID       string   `json:"job_id,omitempty"`
}

// progressReader counts bytes handed to the HTTP transport and reports
// them as percentages. It caps at 99 so that 100 is only ever emitted
// once the server has acknowledged the request.
type progressReader struct {
	r     io.Reader
	total int64
	read  int64
	last  int
	fn    ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.fn != nil && p.total > 0 {
		p.read += int64(n)
		pct := int(p.read * 100 / p.total)
		if pct > 99 {
			pct = 99
		}
		if pct > p.last {
			p.last = pct
			p.fn(pct)
		}
	}
	return n, err
}

// Upload transmits a file as a multipart request. onProgress may be
// nil. There is no automatic retry; callers decide whether to
// re-invoke on failure.
func (c *Client) Upload(ctx context.Context, filename, contentType string, r io.Reader, onProgress ProgressFunc) (*UploadResult, error) {
	body, formType, err := buildMultipart(filename, contentType, r)
	if err != nil {
		return nil, networkError(err)
	}

	pr := &progressReader{r: body, total: int64(body.Len()), fn: onProgress}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/files/upload", pr)
	if err != nil {
		return nil, networkError(err)
	}
	req.Header.Set("Content-Type", formType)
	req.ContentLength = pr.total

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, networkError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, c.responseError(resp)
	}

	var result UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &Error{Kind: KindServer, Message: MsgServerError, Status: resp.StatusCode, cause: err}
	}

	if onProgress != nil {
		onProgress(100)
	}
	return &result, nil
}

func buildMultipart(filename, contentType string, r io.Reader) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	hdr.Set("Content-Type", contentType)

	part, err := mw.CreatePart(hdr)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

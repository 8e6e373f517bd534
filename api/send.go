package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// MaxAttachmentSize is the upload cap enforced before any bytes leave
// the machine. The server enforces the same limit.
const MaxAttachmentSize = 20 << 20

// allowedExtensions mirrors the server's attachment whitelist.
var allowedExtensions = map[string]bool{
	".xlsx": true,
	".xls":  true,
	".pdf":  true,
	".csv":  true,
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// SendReceipt acknowledges an accepted message. LastMsgID is the stream
// cursor: the next stream open passes it as after_id so the reply is
// picked up from the right position.
type SendReceipt struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
	LastMsgID int64  `json:"last_msg_id"`
}

// ValidateAttachment checks the extension whitelist and size cap
// without reading the file contents.
func ValidateAttachment(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if !allowedExtensions[ext] {
		return fmt.Errorf("%w: %s", ErrAttachmentType, ext)
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() > MaxAttachmentSize {
		return fmt.Errorf("%w: %d bytes", ErrAttachmentTooLarge, info.Size())
	}
	return nil
}

// SendMessage posts a user message, with an optional file attachment,
// and returns the server's receipt. The agent runs in the background;
// its output arrives on the stream, not in this response.
func (c *Client) SendMessage(ctx context.Context, sessionID, content, attachmentPath string) (SendReceipt, error) {
	var receipt SendReceipt

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("content", content); err != nil {
		return receipt, err
	}
	if attachmentPath != "" {
		if err := ValidateAttachment(attachmentPath); err != nil {
			return receipt, err
		}
		if err := attachFile(writer, attachmentPath); err != nil {
			return receipt, err
		}
	}
	if err := writer.Close(); err != nil {
		return receipt, err
	}

	req, err := c.newRequest(ctx, "POST", "/chat/sessions/"+url.PathEscape(sessionID)+"/message", bytes.NewReader(body.Bytes()))
	if err != nil {
		return receipt, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.Do(req)
	if err != nil {
		return receipt, err
	}
	if err := decodeJSON(resp, &receipt); err != nil {
		return receipt, mapNotFound(err, sessionID)
	}
	return receipt, nil
}

func attachFile(writer *multipart.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}

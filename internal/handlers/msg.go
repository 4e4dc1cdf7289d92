package handlers

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docforge/docforge/internal/config"
	"github.com/docforge/docforge/internal/models"
)

// MsgHandler unpacks Outlook .msg emails. The message is converted to
// RFC 822 with msgconvert, then the plain-text body and every named
// attachment become child items that re-enter the pipeline.
type MsgHandler struct {
	msgconvertPath string
	tempDir        string
	timeout        time.Duration
}

// NewMsgHandler creates the msg handler from configuration.
func NewMsgHandler(cfg *config.Config) *MsgHandler {
	return &MsgHandler{
		msgconvertPath: cfg.Subprocess.MsgconvertPath,
		tempDir:        cfg.Zip.TempDir,
		timeout:        time.Duration(cfg.Subprocess.HandlerTimeoutSeconds) * time.Second,
	}
}

// Handle converts and unpacks the message.
func (h *MsgHandler) Handle(ctx context.Context, r io.Reader, file *models.FileMaster) ([]Item, error) {
	workDir, err := os.MkdirTemp(h.tempDir, "docforge-msg-*")
	if err != nil {
		return nil, models.Transientf("temp dir for conversion failed: %v", err)
	}
	defer os.RemoveAll(workDir)

	src := filepath.Join(workDir, filepath.Base(file.FileName))
	if err := writeStream(src, r); err != nil {
		return nil, err
	}

	// msgconvert writes "<input stem>.eml" next to the input.
	_, err = runCommand(ctx, h.timeout, h.msgconvertPath, "--outfile", src+".eml", src)
	if err != nil {
		return nil, fmt.Errorf("failed to convert %s to eml: %w", file.FileName, err)
	}

	eml, err := os.Open(src + ".eml")
	if err != nil {
		return nil, fmt.Errorf("conversion of %s produced no output: %w", file.FileName, err)
	}
	defer eml.Close()

	stem := strings.TrimSuffix(filepath.Base(file.FileName), filepath.Ext(file.FileName))
	return extractEmail(eml, stem)
}

// extractEmail parses an RFC 822 message and returns the text body plus
// named attachments as items.
func extractEmail(r io.Reader, stem string) ([]Item, error) {
	msg, err := mail.ReadMessage(r)
	if err != nil {
		return nil, fmt.Errorf("malformed email: %w", err)
	}

	var items []Item
	err = walkPart(msg.Header.Get("Content-Type"), msg.Header.Get("Content-Transfer-Encoding"),
		"", msg.Body, stem, &items)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// walkPart descends one MIME part. Multipart containers recurse; leaf
// parts contribute an item when they are the text body or a named
// attachment.
func walkPart(contentType, transferEncoding, filename string, body io.Reader, stem string, items *[]Item) error {
	mediaType := "text/plain"
	var params map[string]string
	if contentType != "" {
		var err error
		mediaType, params, err = mime.ParseMediaType(contentType)
		if err != nil {
			return fmt.Errorf("malformed email part: %w", err)
		}
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return fmt.Errorf("multipart email part without boundary")
		}
		mr := multipart.NewReader(body, boundary)
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return fmt.Errorf("malformed email part: %w", err)
			}
			err = walkPart(part.Header.Get("Content-Type"),
				part.Header.Get("Content-Transfer-Encoding"),
				partFilename(part), part, stem, items)
			if err != nil {
				return err
			}
		}
	}

	content, err := decodeBody(body, transferEncoding)
	if err != nil {
		return err
	}

	switch {
	case filename != "":
		*items = append(*items, Item{Filename: filename, Content: content})
	case mediaType == "text/plain":
		if len(strings.TrimSpace(string(content))) > 0 {
			*items = append(*items, Item{Filename: stem + "_body.txt", Content: content})
		}
	}
	// Unnamed non-text parts (inline HTML alternatives, signatures) are
	// dropped.
	return nil
}

// partFilename resolves a part's attachment filename, decoding RFC 2047
// encoded words.
func partFilename(part *multipart.Part) string {
	name := part.FileName()
	if name == "" {
		return ""
	}
	decoder := mime.WordDecoder{}
	if decoded, err := decoder.DecodeHeader(name); err == nil {
		name = decoded
	}
	return filepath.Base(name)
}

func decodeBody(r io.Reader, transferEncoding string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(transferEncoding)) {
	case "base64":
		r = base64.NewDecoder(base64.StdEncoding, r)
	case "quoted-printable":
		r = quotedprintable.NewReader(r)
	}
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("malformed email part: %w", err)
	}
	return content, nil
}

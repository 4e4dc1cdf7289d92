package handlers

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/docforge/docforge/internal/config"
)

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry(config.New())

	tests := []struct {
		ext  string
		want any
	}{
		{"pdf", &PDFHandler{}},
		{"PDF", &PDFHandler{}},
		{".docx", &OfficeHandler{}},
		{"msg", &MsgHandler{}},
		{"txt", &PassthroughHandler{}},
		{"jpeg", &PassthroughHandler{}},
	}
	for _, tt := range tests {
		h := r.Lookup(tt.ext)
		if h == nil {
			t.Errorf("Lookup(%q) = nil", tt.ext)
			continue
		}
		switch tt.want.(type) {
		case *PDFHandler:
			if _, ok := h.(*PDFHandler); !ok {
				t.Errorf("Lookup(%q) = %T, want *PDFHandler", tt.ext, h)
			}
		case *OfficeHandler:
			if _, ok := h.(*OfficeHandler); !ok {
				t.Errorf("Lookup(%q) = %T, want *OfficeHandler", tt.ext, h)
			}
		case *MsgHandler:
			if _, ok := h.(*MsgHandler); !ok {
				t.Errorf("Lookup(%q) = %T, want *MsgHandler", tt.ext, h)
			}
		case *PassthroughHandler:
			if _, ok := h.(*PassthroughHandler); !ok {
				t.Errorf("Lookup(%q) = %T, want *PassthroughHandler", tt.ext, h)
			}
		}
	}

	if h := r.Lookup("exe"); h != nil {
		t.Errorf("Lookup(exe) = %T, want nil", h)
	}
	if h := r.Lookup(""); h != nil {
		t.Errorf("Lookup(\"\") = %T, want nil", h)
	}
}

func TestPassthroughReturnsNoItems(t *testing.T) {
	h := NewPassthroughHandler()
	items, err := h.Handle(context.Background(), strings.NewReader("raw bytes"), nil)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if items != nil {
		t.Fatalf("items = %v, want nil", items)
	}
}

func TestExtractEmailPlainBody(t *testing.T) {
	raw := "From: a@example.com\r\n" +
		"To: b@example.com\r\n" +
		"Subject: hello\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"Meeting at three.\r\n"

	items, err := extractEmail(strings.NewReader(raw), "mail")
	if err != nil {
		t.Fatalf("extractEmail: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if items[0].Filename != "mail_body.txt" {
		t.Errorf("filename = %q", items[0].Filename)
	}
	if !strings.Contains(string(items[0].Content), "Meeting at three.") {
		t.Errorf("body = %q", items[0].Content)
	}
}

func TestExtractEmailMultipartWithAttachment(t *testing.T) {
	pdfBytes := []byte("%PDF-1.4 fake document")
	encoded := base64.StdEncoding.EncodeToString(pdfBytes)

	raw := "From: a@example.com\r\n" +
		"Subject: invoice\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/mixed; boundary=\"frontier\"\r\n" +
		"\r\n" +
		"--frontier\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"Please find the invoice attached.\r\n" +
		"--frontier\r\n" +
		"Content-Type: application/pdf\r\n" +
		"Content-Transfer-Encoding: base64\r\n" +
		"Content-Disposition: attachment; filename=\"invoice.pdf\"\r\n" +
		"\r\n" +
		encoded + "\r\n" +
		"--frontier--\r\n"

	items, err := extractEmail(strings.NewReader(raw), "mail")
	if err != nil {
		t.Fatalf("extractEmail: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}

	byName := make(map[string][]byte)
	for _, item := range items {
		byName[item.Filename] = item.Content
	}
	if !strings.Contains(string(byName["mail_body.txt"]), "invoice attached") {
		t.Errorf("body item missing or wrong: %q", byName["mail_body.txt"])
	}
	if got := string(byName["invoice.pdf"]); got != string(pdfBytes) {
		t.Errorf("attachment = %q, want %q", got, pdfBytes)
	}
}

func TestExtractEmailDropsHtmlAlternative(t *testing.T) {
	raw := "From: a@example.com\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/alternative; boundary=\"alt\"\r\n" +
		"\r\n" +
		"--alt\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"plain version\r\n" +
		"--alt\r\n" +
		"Content-Type: text/html\r\n" +
		"\r\n" +
		"<p>html version</p>\r\n" +
		"--alt--\r\n"

	items, err := extractEmail(strings.NewReader(raw), "mail")
	if err != nil {
		t.Fatalf("extractEmail: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1 (html alternative dropped)", len(items))
	}
	if items[0].Filename != "mail_body.txt" {
		t.Errorf("filename = %q", items[0].Filename)
	}
}

func TestDecodeBody(t *testing.T) {
	plain, err := decodeBody(strings.NewReader("hello"), "")
	if err != nil || string(plain) != "hello" {
		t.Errorf("identity decode = %q, %v", plain, err)
	}

	b64 := base64.StdEncoding.EncodeToString([]byte("payload"))
	decoded, err := decodeBody(strings.NewReader(b64), "BASE64")
	if err != nil || string(decoded) != "payload" {
		t.Errorf("base64 decode = %q, %v", decoded, err)
	}

	qp, err := decodeBody(strings.NewReader("caf=C3=A9"), "quoted-printable")
	if err != nil || string(qp) != "café" {
		t.Errorf("quoted-printable decode = %q, %v", qp, err)
	}
}

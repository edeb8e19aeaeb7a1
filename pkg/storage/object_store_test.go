package storage

import (
	"context"
	"strings"
	"testing"
)

func TestAttachmentKey(t *testing.T) {
	cases := []struct {
		scope, name, suffix, prefix string
	}{
		{"chat", "factura final.pdf", "-factura_final.pdf", "chat/"},
		{"/uploads/", "../../etc/passwd", "-passwd", "uploads/"},
		{"", `C:\Users\ana\foto.png`, "-foto.png", "chat/"},
		{"chat", "..", "-file", "chat/"},
		{"chat", "ñandú.txt", "-and.txt", "chat/"},
	}
	for _, tc := range cases {
		got := AttachmentKey(tc.scope, tc.name)
		if !strings.HasPrefix(got, tc.prefix) || !strings.HasSuffix(got, tc.suffix) {
			t.Fatalf("AttachmentKey(%q, %q) = %q", tc.scope, tc.name, got)
		}
	}
	if AttachmentKey("chat", "a.txt") == AttachmentKey("chat", "a.txt") {
		t.Fatalf("keys must be unique per call")
	}
}

func TestNewMinioStoreRequiresEndpointAndBucket(t *testing.T) {
	if _, err := NewMinioStore(context.Background(), MinioConfig{Bucket: "b"}); err == nil {
		t.Fatalf("expected error without endpoint")
	}
	if _, err := NewMinioStore(context.Background(), MinioConfig{Endpoint: "localhost:9000"}); err == nil {
		t.Fatalf("expected error without bucket")
	}
}

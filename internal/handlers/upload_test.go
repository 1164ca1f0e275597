package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/rianhasansiam/digicam/internal/handlers"
)

// pngBytes is a minimal payload standing in for real image data.
var pngBytes = []byte("\x89PNG\r\n\x1a\nfake image body")

func uploadRequest(t *testing.T, srv *httptest.Server, conversationID, filename, contentType string, payload []byte, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if conversationID != "" {
		if err := mw.WriteField("conversationId", conversationID); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if filename != "" {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
		hdr.Set("Content-Type", contentType)
		part, err := mw.CreatePart(hdr)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := part.Write(payload); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req, err := http.NewRequest("POST", srv.URL+"/api/chat/upload", &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp, raw
}

func TestUploadAndDownloadRoundtrip(t *testing.T) {
	srv := newTestServer(t)

	resp, raw := uploadRequest(t, srv, "user-9", "photo.png", "image/png", pngBytes,
		map[string]string{"X-User-Id": "user-9"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload: status = %d, body %s", resp.StatusCode, raw)
	}

	var result handlers.UploadResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(result.Files) != 1 {
		t.Fatalf("got %d files", len(result.Files))
	}
	f := result.Files[0]
	if f.Type != "image" || f.Filename != "photo.png" || f.Mimetype != "image/png" {
		t.Fatalf("unexpected file entry: %+v", f)
	}
	if f.Size != int64(len(pngBytes)) {
		t.Fatalf("size = %d, want %d", f.Size, len(pngBytes))
	}
	if !strings.HasPrefix(f.URL, "/api/chat/upload?fileId=") {
		t.Fatalf("url = %q", f.URL)
	}

	// The returned URL serves the original bytes back.
	dl, body := do(t, srv, testRequest{method: "GET", path: f.URL})
	if dl.StatusCode != http.StatusOK {
		t.Fatalf("download: status = %d, body %s", dl.StatusCode, body)
	}
	if !bytes.Equal(body, pngBytes) {
		t.Fatalf("downloaded %d bytes, want the uploaded payload", len(body))
	}
	if ct := dl.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content-type = %q", ct)
	}
}

func TestUploadDocumentType(t *testing.T) {
	srv := newTestServer(t)

	resp, raw := uploadRequest(t, srv, "user-9", "invoice.pdf", "application/pdf", []byte("%PDF-1.4 fake"),
		map[string]string{"X-User-Id": "user-9"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload: status = %d, body %s", resp.StatusCode, raw)
	}

	var result handlers.UploadResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(result.Files) != 1 || result.Files[0].Type != "file" {
		t.Fatalf("unexpected result: %+v", result.Files)
	}
}

func TestUploadRequiresIdentity(t *testing.T) {
	srv := newTestServer(t)

	// Anonymous visitors cannot upload, unlike sending text messages.
	resp, _ := uploadRequest(t, srv, testGuestID, "photo.png", "image/png", pngBytes, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous upload: status = %d", resp.StatusCode)
	}
}

func TestUploadAccessControl(t *testing.T) {
	srv := newTestServer(t)

	// A user cannot attach files to another user's thread.
	resp, _ := uploadRequest(t, srv, "user-9", "photo.png", "image/png", pngBytes,
		map[string]string{"X-User-Id": "user-8"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("cross-user upload: status = %d", resp.StatusCode)
	}

	// Admins can attach to any thread.
	resp, raw := uploadRequest(t, srv, "user-9", "photo.png", "image/png", pngBytes, adminHeaders())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("admin upload: status = %d, body %s", resp.StatusCode, raw)
	}
}

func TestUploadValidation(t *testing.T) {
	srv := newTestServer(t)
	owner := map[string]string{"X-User-Id": "user-9"}

	resp, _ := uploadRequest(t, srv, "", "photo.png", "image/png", pngBytes, owner)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing conversationId: status = %d", resp.StatusCode)
	}

	resp, _ = uploadRequest(t, srv, "user-9", "", "", nil, owner)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("no file part: status = %d", resp.StatusCode)
	}

	resp, _ = uploadRequest(t, srv, "user-9", "malware.exe", "application/x-msdownload", []byte("MZ"), owner)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("disallowed type: status = %d", resp.StatusCode)
	}
}

func TestDownloadUnknownFile(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := do(t, srv, testRequest{method: "GET", path: "/api/chat/upload"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing fileId: status = %d", resp.StatusCode)
	}

	resp, _ = do(t, srv, testRequest{method: "GET", path: "/api/chat/upload?fileId=01ARZ3NDEKTSV4RRFFQ69G5FAV.png"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown file: status = %d", resp.StatusCode)
	}
}

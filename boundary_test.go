package typesetd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/coder/websocket"
	"go.uber.org/zap"
)

func TestParseInbound_CompileObject(t *testing.T) {
	msg, err := parseInbound([]byte(`{"source": "= Hi", "files": {"logo.png": "iVBO"}}`))
	if err != nil {
		t.Fatalf("parseInbound: %v", err)
	}
	if msg.Source != "= Hi" {
		t.Errorf("source = %q", msg.Source)
	}
	if len(msg.Files) != 1 {
		t.Errorf("files = %v", msg.Files)
	}
}

func TestParseInbound_LoadFonts(t *testing.T) {
	msg, err := parseInbound([]byte(`{"type": "loadFonts", "fonts": [{"name": "a.ttf", "data": "AQID"}]}`))
	if err != nil {
		t.Fatalf("parseInbound: %v", err)
	}
	if msg.Type != "loadFonts" || len(msg.Fonts) != 1 {
		t.Fatalf("msg = %+v", msg)
	}
	if !bytes.Equal(msg.Fonts[0].Data, []byte{1, 2, 3}) {
		t.Errorf("font data = %v, want decoded base64", msg.Fonts[0].Data)
	}
}

func TestParseInbound_BareJSONString(t *testing.T) {
	msg, err := parseInbound([]byte(`"= Legacy"`))
	if err != nil {
		t.Fatalf("parseInbound: %v", err)
	}
	if msg.Source != "= Legacy" || msg.Type != "" {
		t.Errorf("msg = %+v", msg)
	}
}

func TestParseInbound_RawTextFallback(t *testing.T) {
	msg, err := parseInbound([]byte("= Raw typesetting source"))
	if err != nil {
		t.Fatalf("parseInbound: %v", err)
	}
	if msg.Source != "= Raw typesetting source" {
		t.Errorf("source = %q", msg.Source)
	}
}

func TestParseInbound_Empty(t *testing.T) {
	if _, err := parseInbound([]byte("   ")); err == nil {
		t.Error("expected error for empty message")
	}
}

func TestEncodeOutcome_Success(t *testing.T) {
	data, err := encodeOutcome(Success([]byte("%PDF-1.7")), "")
	if err != nil {
		t.Fatalf("encodeOutcome: %v", err)
	}

	var msg compiledMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Type != "compiled" || !msg.OK {
		t.Errorf("msg = %+v", msg)
	}
	if string(msg.PDFBuffer) != "%PDF-1.7" {
		t.Errorf("pdfBuffer = %q", msg.PDFBuffer)
	}
	if msg.Encoding != "" {
		t.Errorf("encoding = %q, want empty without opt-in", msg.Encoding)
	}
}

func TestEncodeOutcome_Failure(t *testing.T) {
	diags, summary := Normalize(TextPayload("main.typ:1:1: oops"), MainFilePath)
	data, err := encodeOutcome(Failure(summary, diags), "")
	if err != nil {
		t.Fatalf("encodeOutcome: %v", err)
	}

	var msg compiledMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.OK {
		t.Error("ok should be false")
	}
	if msg.Error == "" {
		t.Error("error summary missing")
	}
	if len(msg.Diagnostics) != 1 {
		t.Fatalf("diagnostics = %v", msg.Diagnostics)
	}
	if msg.Diagnostics[0].File != "main.typ" {
		t.Errorf("file = %q", msg.Diagnostics[0].File)
	}
}

func TestEncodeOutcome_BrotliRoundTrip(t *testing.T) {
	artifact := bytes.Repeat([]byte("%PDF-1.7 stream data "), 100)
	data, err := encodeOutcome(Success(artifact), encodingBrotli)
	if err != nil {
		t.Fatalf("encodeOutcome: %v", err)
	}

	var msg compiledMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Encoding != encodingBrotli {
		t.Fatalf("encoding = %q", msg.Encoding)
	}
	if len(msg.PDFBuffer) >= len(artifact) {
		t.Errorf("compressed %d >= original %d", len(msg.PDFBuffer), len(artifact))
	}

	decompressed, err := io.ReadAll(brotli.NewReader(bytes.NewReader(msg.PDFBuffer)))
	if err != nil {
		t.Fatalf("brotli read: %v", err)
	}
	if !bytes.Equal(decompressed, artifact) {
		t.Error("round trip mismatch")
	}
}

// dialTestBoundary spins up an HTTP server whose handler runs a Boundary
// backed by the given fake factory, and dials it.
func dialTestBoundary(t *testing.T, f *fakeFactory) *websocket.Conn {
	t.Helper()

	logger := zap.NewNop()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		b := NewBoundary(conn, f, StaticModuleLoader(testModule), nil, logger)
		_ = b.Run(r.Context())
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	conn.SetReadLimit(maxMessageBytes)
	return conn
}

func readCompiled(t *testing.T, conn *websocket.Conn) compiledMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg compiledMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return msg
}

func TestBoundary_CompileOverWebSocket(t *testing.T) {
	conn := dialTestBoundary(t, &fakeFactory{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"source": "= Hi"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	msg := readCompiled(t, conn)
	if !msg.OK {
		t.Fatalf("msg = %+v, want ok", msg)
	}
	if len(msg.PDFBuffer) == 0 {
		t.Error("pdfBuffer is empty")
	}
}

func TestBoundary_FailureOverWebSocket(t *testing.T) {
	f := &fakeFactory{compileFn: func(e *fakeEngine) (*RawResult, error) {
		return &RawResult{Diagnostics: TextPayload("main.typ:2:7: unknown function")}, nil
	}}
	conn := dialTestBoundary(t, f)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte(`"#nonexistent-function()"`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	msg := readCompiled(t, conn)
	if msg.OK {
		t.Fatal("msg should not be ok")
	}
	if len(msg.Diagnostics) < 1 {
		t.Fatal("failure message without diagnostics")
	}
	if msg.Diagnostics[0].Line == nil || *msg.Diagnostics[0].Line != 2 {
		t.Errorf("line = %v, want 2", msg.Diagnostics[0].Line)
	}
}

func TestBoundary_ConfigureBrotli(t *testing.T) {
	conn := dialTestBoundary(t, &fakeFactory{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type": "configure", "artifactEncoding": "br"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"source": "= Hi"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	msg := readCompiled(t, conn)
	if !msg.OK {
		t.Fatalf("msg = %+v, want ok", msg)
	}
	if msg.Encoding != encodingBrotli {
		t.Errorf("encoding = %q, want br", msg.Encoding)
	}
	decompressed, err := io.ReadAll(brotli.NewReader(bytes.NewReader(msg.PDFBuffer)))
	if err != nil {
		t.Fatalf("brotli read: %v", err)
	}
	if len(decompressed) == 0 {
		t.Error("decompressed artifact is empty")
	}
}

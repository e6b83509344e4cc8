package typesetd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// maxMessageBytes is the maximum size of a single inbound message. Font
// uploads dominate; compiled sources are small.
const maxMessageBytes = 64 << 20

// writeTimeout bounds a single outbound message write.
const writeTimeout = 30 * time.Second

// encodingBrotli marks a brotli-compressed artifact on the wire.
const encodingBrotli = "br"

// inboundMessage is the decoded form of one message from the editor.
// Binary fields cross the wire base64-encoded (Go's []byte JSON encoding).
type inboundMessage struct {
	Type             string            `json:"type"`
	Fonts            []fontMessage     `json:"fonts"`
	Source           string            `json:"source"`
	Files            map[string][]byte `json:"files"`
	ArtifactEncoding string            `json:"artifactEncoding"`
}

type fontMessage struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
}

// compiledMessage is the single outbound message shape.
type compiledMessage struct {
	Type        string       `json:"type"`
	OK          bool         `json:"ok"`
	PDFBuffer   []byte       `json:"pdfBuffer,omitempty"`
	Encoding    string       `json:"encoding,omitempty"`
	Error       string       `json:"error,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// parseInbound decodes one raw message. Three shapes are accepted: a typed
// object ({type: "loadFonts"|"configure", ...}), an untyped compile
// request ({source, files}), and — for legacy callers — a bare string (or
// non-JSON text), taken wholesale as the source.
func parseInbound(data []byte) (*inboundMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty message")
	}

	if trimmed[0] == '"' {
		var source string
		if err := json.Unmarshal(trimmed, &source); err != nil {
			return nil, fmt.Errorf("decoding string message: %w", err)
		}
		return &inboundMessage{Source: source}, nil
	}

	if trimmed[0] == '{' {
		var msg inboundMessage
		if err := json.Unmarshal(trimmed, &msg); err != nil {
			return nil, fmt.Errorf("decoding message: %w", err)
		}
		return &msg, nil
	}

	// Legacy: raw text is the source document itself.
	return &inboundMessage{Source: string(data)}, nil
}

// encodeOutcome renders a compile outcome as the outbound compiled
// message. When the caller opted into brotli and the compile succeeded,
// the artifact is compressed and the message marked with the encoding.
func encodeOutcome(outcome CompileOutcome, artifactEncoding string) ([]byte, error) {
	msg := compiledMessage{Type: "compiled", OK: outcome.OK}

	if outcome.OK {
		msg.PDFBuffer = outcome.Artifact
		if artifactEncoding == encodingBrotli {
			compressed, err := brotliCompress(outcome.Artifact)
			if err != nil {
				return nil, fmt.Errorf("compressing artifact: %w", err)
			}
			msg.PDFBuffer = compressed
			msg.Encoding = encodingBrotli
		}
	} else {
		msg.Error = outcome.Summary
		msg.Diagnostics = outcome.Diagnostics
	}

	return json.Marshal(msg)
}

func brotliCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := brotli.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Boundary runs the message protocol for one editor connection. It owns a
// WorkerSession and is the only writer on the connection; outcomes are
// posted in the order compilations complete, which — because the
// scheduler coalesces — is not necessarily submission order.
type Boundary struct {
	conn    *websocket.Conn
	session *WorkerSession
	logger  *zap.Logger

	mu               sync.Mutex
	artifactEncoding string
}

// NewBoundary wires a boundary around a websocket connection. fonts is
// the initial font set (may be nil for the engine's defaults).
func NewBoundary(conn *websocket.Conn, factory EngineFactory, module ModuleLoader, fonts []FontAsset, logger *zap.Logger) *Boundary {
	b := &Boundary{conn: conn, logger: logger}
	b.session = NewWorkerSession(factory, module, b.post)
	if len(fonts) > 0 {
		b.session.LoadFonts(fonts)
	}
	conn.SetReadLimit(maxMessageBytes)
	return b
}

// Session exposes the boundary's worker session.
func (b *Boundary) Session() *WorkerSession {
	return b.session
}

// Run reads messages until the connection closes or ctx is cancelled.
// A compilation still in flight when Run returns finishes in the
// background; its outcome write fails harmlessly on the closed connection.
func (b *Boundary) Run(ctx context.Context) error {
	for {
		_, data, err := b.conn.Read(ctx)
		if err != nil {
			return err
		}
		b.handle(data)
	}
}

// handle dispatches one inbound message. Malformed messages are reported
// as failed outcomes rather than dropped, so the editor is never left
// waiting.
func (b *Boundary) handle(data []byte) {
	msg, err := parseInbound(data)
	if err != nil {
		diags, summary := NormalizeError(err, MainFilePath)
		b.post(Failure(summary, diags))
		return
	}

	switch msg.Type {
	case "loadFonts":
		fonts := make([]FontAsset, 0, len(msg.Fonts))
		for _, f := range msg.Fonts {
			fonts = append(fonts, FontAsset{Name: f.Name, Data: f.Data})
		}
		b.session.LoadFonts(fonts)

	case "configure":
		b.mu.Lock()
		b.artifactEncoding = msg.ArtifactEncoding
		b.mu.Unlock()

	default:
		b.session.Submit(&CompileRequest{Source: msg.Source, Files: msg.Files})
	}
}

// post delivers one outcome to the editor. Called from the scheduler
// goroutine; writes are serialized by the mutex.
func (b *Boundary) post(outcome CompileOutcome) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := encodeOutcome(outcome, b.artifactEncoding)
	if err != nil {
		b.logger.Error("encoding outcome", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := b.conn.Write(ctx, websocket.MessageText, data); err != nil {
		b.logger.Warn("posting outcome", zap.Error(err))
	}
}

package splice_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tailored-agentic-units/llamachat/engine"
	"github.com/tailored-agentic-units/llamachat/engine/mock"
	"github.com/tailored-agentic-units/llamachat/observability"
	"github.com/tailored-agentic-units/llamachat/splice"
	"github.com/tailored-agentic-units/llamachat/window"
)

func validPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode failed: %v", err)
	}
	return buf.Bytes()
}

func pngURI(t *testing.T) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(validPNG(t))
}

// recorder is a Tokenizer and Committer that logs each operation.
type recorder struct {
	ops     []string
	failOn  string
	imgs    [][]byte
	pending string
}

func (r *recorder) Tokenize(text string, _, _ bool) ([]engine.Token, error) {
	r.pending = text
	return mock.Text(text), nil
}

func (r *recorder) Commit(_ context.Context, _ []engine.Token) error {
	op := "text:" + r.pending
	if r.failOn == "text" {
		return errors.New("commit failed")
	}
	r.ops = append(r.ops, op)
	return nil
}

func (r *recorder) CommitImage(_ context.Context, _ engine.Vision, img []byte) error {
	if r.failOn == "image" {
		return errors.New("embed failed")
	}
	r.ops = append(r.ops, "image")
	r.imgs = append(r.imgs, img)
	return nil
}

type captureObserver struct {
	events []observability.Event
}

func (c *captureObserver) OnEvent(_ context.Context, event observability.Event) {
	c.events = append(c.events, event)
}

func newSplicer(r *recorder, opts ...splice.Option) *splice.Splicer {
	return splice.New(r, r, mock.NewVision(mock.NewModel(), 4), opts...)
}

func TestEval_TextImageText(t *testing.T) {
	r := &recorder{}
	text := "before " + pngURI(t) + " after"

	if err := newSplicer(r).Eval(context.Background(), text, false, false); err != nil {
		t.Fatalf("Eval() unexpected error: %v", err)
	}

	want := []string{"text:before ", "image", "text: after"}
	if diff := cmp.Diff(want, r.ops); diff != "" {
		t.Errorf("operations mismatch (-want +got):\n%s", diff)
	}
	if !bytes.Equal(r.imgs[0], validPNG(t)) {
		t.Error("embedded bytes should equal the decoded payload")
	}
}

func TestEval_SkipsNonImageMarker(t *testing.T) {
	r := &recorder{}
	text := "oops data:text/plain;base64,xx real " + pngURI(t)

	if err := newSplicer(r).Eval(context.Background(), text, false, false); err != nil {
		t.Fatalf("Eval() unexpected error: %v", err)
	}

	want := []string{"text:oops data:text/plain;base64,xx real ", "image", "text:"}
	if diff := cmp.Diff(want, r.ops); diff != "" {
		t.Errorf("operations mismatch (-want +got):\n%s", diff)
	}
}

func TestEval_MalformedMarkersMakeProgress(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "bare prefix", text: "data:"},
		{name: "repeated prefix", text: "data:data:data:data:"},
		{name: "no payload", text: "data:image/png;base64,"},
		{name: "no base64 marker", text: "data:image/png,iVBORw0KGgo="},
		{name: "not an image", text: "data:image/png;base64,AAAA"},
		{name: "bad base64", text: "data:image/png;base64,A"},
		{name: "unknown parameter flag", text: "data:image/png;foo;base64,AAAA"},
		{name: "uppercase prefix", text: "DATA:image/png;base64,!!!"},
		{name: "missing subtype", text: "data:image/;base64,AAAA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &recorder{}
			if err := newSplicer(r).Eval(context.Background(), tt.text, false, false); err != nil {
				t.Fatalf("Eval() unexpected error: %v", err)
			}
			want := []string{"text:" + tt.text}
			if diff := cmp.Diff(want, r.ops); diff != "" {
				t.Errorf("operations mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEval_CaseInsensitive(t *testing.T) {
	r := &recorder{}
	uri := strings.Replace(pngURI(t), "data:image/png;base64", "DATA:Image/PNG;BASE64", 1)

	if err := newSplicer(r).Eval(context.Background(), "x"+uri, false, false); err != nil {
		t.Fatalf("Eval() unexpected error: %v", err)
	}

	want := []string{"text:x", "image", "text:"}
	if diff := cmp.Diff(want, r.ops); diff != "" {
		t.Errorf("operations mismatch (-want +got):\n%s", diff)
	}
}

func TestEval_MultipleImages(t *testing.T) {
	r := &recorder{}
	uri := pngURI(t)
	text := "a" + uri + "b" + uri + "c"

	if err := newSplicer(r).Eval(context.Background(), text, false, false); err != nil {
		t.Fatalf("Eval() unexpected error: %v", err)
	}

	want := []string{"text:a", "image", "text:b", "image", "text:c"}
	if diff := cmp.Diff(want, r.ops); diff != "" {
		t.Errorf("operations mismatch (-want +got):\n%s", diff)
	}
}

func TestEval_Failures(t *testing.T) {
	for _, failOn := range []string{"text", "image"} {
		t.Run(failOn, func(t *testing.T) {
			r := &recorder{failOn: failOn}
			err := newSplicer(r).Eval(context.Background(), "x "+pngURI(t), false, false)
			if err == nil {
				t.Fatal("Eval() expected error")
			}
		})
	}
}

func TestEval_NoVision(t *testing.T) {
	r := &recorder{}
	text := "look " + pngURI(t)

	if err := splice.New(r, r, nil).Eval(context.Background(), text, false, false); err != nil {
		t.Fatalf("Eval() unexpected error: %v", err)
	}

	want := []string{"text:" + text}
	if diff := cmp.Diff(want, r.ops); diff != "" {
		t.Errorf("operations mismatch (-want +got):\n%s", diff)
	}
}

func TestEval_ImageEvent(t *testing.T) {
	r := &recorder{}
	obs := &captureObserver{}

	if err := newSplicer(r, splice.WithObserver(obs)).Eval(context.Background(), pngURI(t), false, false); err != nil {
		t.Fatalf("Eval() unexpected error: %v", err)
	}

	if len(obs.events) != 1 || obs.events[0].Type != splice.EventImage {
		t.Fatalf("events = %v, want one %s", obs.events, splice.EventImage)
	}
	data := obs.events[0].Data
	if data["format"] != "png" || data["mime"] != "image/png" {
		t.Errorf("event data = %v", data)
	}
	if digest, _ := data["blake3"].(string); len(digest) != 64 {
		t.Errorf("blake3 digest = %q, want 64 hex characters", digest)
	}
}

func TestEval_WithWindow(t *testing.T) {
	model := mock.NewModel()
	vision := mock.NewVision(model, 3)
	m := window.New(model, window.NewState(), nil)

	err := splice.New(model, m, vision).Eval(context.Background(), "hi "+pngURI(t)+"!", false, false)
	if err != nil {
		t.Fatalf("Eval() unexpected error: %v", err)
	}

	want := append(mock.Text("hi "), engine.ImagePlaceholder, engine.ImagePlaceholder, engine.ImagePlaceholder)
	want = append(want, mock.Text("!")...)
	if diff := cmp.Diff(want, m.State().Tokens()); diff != "" {
		t.Errorf("committed tokens mismatch (-want +got):\n%s", diff)
	}
	if len(vision.Images()) != 1 {
		t.Errorf("vision embedded %d images, want 1", len(vision.Images()))
	}
}

func TestParseDataURI(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantOK    bool
		wantMedia string
		wantN     int
		wantParam map[string]string
	}{
		{name: "simple", input: "image/png;base64,AAAA rest", wantOK: true, wantMedia: "image/png", wantN: 21},
		{
			name:      "with parameter",
			input:     "image/svg+xml;charset=utf-8;base64,QQ==",
			wantOK:    true,
			wantMedia: "image/svg+xml",
			wantN:     39,
			wantParam: map[string]string{"charset": "utf-8"},
		},
		{name: "percent encoded", input: "text/plain,hello", wantOK: false},
		{name: "empty", input: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, n, ok := splice.ParseDataURI(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ParseDataURI() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if u.MediaType != tt.wantMedia || n != tt.wantN {
				t.Errorf("ParseDataURI() = (%q, %d), want (%q, %d)", u.MediaType, n, tt.wantMedia, tt.wantN)
			}
			if diff := cmp.Diff(tt.wantParam, u.Params); diff != "" {
				t.Errorf("params mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSniff(t *testing.T) {
	webp := append([]byte("RIFF\x00\x00\x00\x00WEBP"), make([]byte, 8)...)
	bmp := append([]byte("BM"), make([]byte, 30)...)

	tests := []struct {
		name   string
		data   []byte
		want   string
		wantOK bool
	}{
		{name: "png", data: validPNG(t), want: "png", wantOK: true},
		{name: "webp", data: webp, want: "webp", wantOK: true},
		{name: "bmp", data: bmp, want: "bmp", wantOK: true},
		{name: "png signature only", data: []byte("\x89PNG\r\n\x1a\n"), wantOK: false},
		{name: "text", data: []byte("hello world"), wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := splice.Sniff(tt.data)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Sniff() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

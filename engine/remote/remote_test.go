package remote_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tailored-agentic-units/llamachat/engine"
	"github.com/tailored-agentic-units/llamachat/engine/mock"
	"github.com/tailored-agentic-units/llamachat/engine/remote"
	"github.com/tailored-agentic-units/llamachat/generate"
	"github.com/tailored-agentic-units/llamachat/interrupt"
	"github.com/tailored-agentic-units/llamachat/window"
)

func serve(t *testing.T, model *mock.Model, vision engine.Vision) *remote.Client {
	t.Helper()

	mux := http.NewServeMux()
	mux.Handle(remote.NewHandler(model, vision))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client, err := remote.Dial(context.Background(), srv.Client(), srv.URL)
	if err != nil {
		t.Fatalf("Dial() unexpected error: %v", err)
	}
	return client
}

func TestDial_Info(t *testing.T) {
	model := mock.NewModel(mock.WithContextSize(512), mock.WithChatTemplate("tmpl"), mock.WithAddBOS(true))
	client := serve(t, model, nil)

	got := []any{client.BOS(), client.EOT(), client.AddBOS(), client.ContextSize(), client.TrainContextSize(), client.ChatTemplate(), client.HasVision()}
	want := []any{mock.TokenBOS, mock.TokenEOT, true, 512, 8192, "tmpl", false}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("info mismatch (-want +got):\n%s", diff)
	}
}

func TestVocab(t *testing.T) {
	model := mock.NewModel(mock.WithAddBOS(true), mock.WithSpecial("<|im_end|>", 50))
	client := serve(t, model, nil)

	tokens, err := client.Tokenize("hi<|im_end|>", true, true)
	if err != nil {
		t.Fatalf("Tokenize() unexpected error: %v", err)
	}
	want := append(append([]engine.Token{mock.TokenBOS}, mock.Text("hi")...), 50)
	if diff := cmp.Diff(want, tokens); diff != "" {
		t.Errorf("Tokenize() mismatch (-want +got):\n%s", diff)
	}

	if got := client.Piece(50, true); got != "<|im_end|>" {
		t.Errorf("Piece(special) = %q, want %q", got, "<|im_end|>")
	}
	if got := client.Piece(50, false); got != "" {
		t.Errorf("Piece(special, hidden) = %q, want \"\"", got)
	}
	if !client.IsEOG(mock.TokenEOT) || client.IsEOG(mock.RuneBase+'a') {
		t.Error("IsEOG() disagrees with the served model")
	}
}

func TestCommitAndGenerate(t *testing.T) {
	model := mock.NewModel(mock.WithScript(append(mock.Text("ok"), mock.TokenEOT)...))
	client := serve(t, model, nil)

	flag := new(interrupt.Flag)
	manager := window.New(client, window.NewState(), &window.Config{BatchSize: 2}, window.WithInterrupt(flag))
	if err := manager.Commit(context.Background(), mock.Text("hello")); err != nil {
		t.Fatalf("Commit() unexpected error: %v", err)
	}
	if len(model.Batches()) != 3 || model.Syncs() != 1 {
		t.Errorf("served model saw %d batches and %d syncs, want 3 and 1", len(model.Batches()), model.Syncs())
	}

	sampler, err := client.NewSampler(engine.SamplerParams{Temperature: 0.7, TopK: 40, Seed: 7})
	if err != nil {
		t.Fatalf("NewSampler() unexpected error: %v", err)
	}
	var out bytes.Buffer
	res, err := generate.New(client, manager, flag).Drive(context.Background(), sampler, &out)
	if err != nil {
		t.Fatalf("Drive() unexpected error: %v", err)
	}
	if res.Stop != generate.StopEOG || out.String() != "ok" {
		t.Errorf("Drive() = (%v, %q), want (eog, \"ok\")", res.Stop, out.String())
	}

	served := model.Samplers()[0]
	if diff := cmp.Diff(engine.SamplerParams{Temperature: 0.7, TopK: 40, Seed: 7}, served.Params()); diff != "" {
		t.Errorf("sampler params mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(append(mock.Text("ok"), mock.TokenEOT), served.Accepted()); diff != "" {
		t.Errorf("accepted tokens mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(model.Decoded(), manager.State().Tokens()); diff != "" {
		t.Errorf("state diverged from served model (-model +state):\n%s", diff)
	}
}

func TestErrorMapping(t *testing.T) {
	model := mock.NewModel(mock.WithContextSize(2))
	client := serve(t, model, nil)

	err := client.Decode(engine.Batch{Tokens: mock.Text("abc")})
	if !errors.Is(err, engine.ErrContextFull) {
		t.Errorf("Decode(overflow) error = %v, want %v", err, engine.ErrContextFull)
	}

	err = client.Decode(engine.Batch{Tokens: mock.Text("a"), Pos: 5})
	if !errors.Is(err, engine.ErrDecode) {
		t.Errorf("Decode(bad position) error = %v, want %v", err, engine.ErrDecode)
	}

	if _, err := client.Embed([]byte("img"), 0); !errors.Is(err, engine.ErrVisionMissing) {
		t.Errorf("Embed(no vision) error = %v, want %v", err, engine.ErrVisionMissing)
	}
}

func TestEmbed(t *testing.T) {
	model := mock.NewModel()
	vision := mock.NewVision(model, 4)
	client := serve(t, model, vision)

	if !client.HasVision() {
		t.Fatal("HasVision() = false, want true")
	}

	image := []byte{0x89, 'P', 'N', 'G', 0, 1, 2}
	n, err := client.Embed(image, 0)
	if err != nil {
		t.Fatalf("Embed() unexpected error: %v", err)
	}
	if n != 4 {
		t.Errorf("Embed() = %d positions, want 4", n)
	}
	if diff := cmp.Diff([][]byte{image}, vision.Images()); diff != "" {
		t.Errorf("images mismatch (-want +got):\n%s", diff)
	}
}

func TestClose_KeepsServedModelOpen(t *testing.T) {
	model := mock.NewModel()
	client := serve(t, model, nil)

	if err := client.Close(); err != nil {
		t.Fatalf("Close() unexpected error: %v", err)
	}
	if model.Closed() {
		t.Error("closing a client should not close the served model")
	}
}

func TestClose_KeepsOtherClientsSamplers(t *testing.T) {
	model := mock.NewModel(mock.WithScript(mock.TokenEOT, mock.TokenEOT))
	mux := http.NewServeMux()
	mux.Handle(remote.NewHandler(model, nil))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	dial := func() *remote.Client {
		client, err := remote.Dial(context.Background(), srv.Client(), srv.URL)
		if err != nil {
			t.Fatalf("Dial() unexpected error: %v", err)
		}
		return client
	}
	first, second := dial(), dial()

	closing, err := first.NewSampler(engine.SamplerParams{})
	if err != nil {
		t.Fatalf("NewSampler() unexpected error: %v", err)
	}
	kept, err := second.NewSampler(engine.SamplerParams{})
	if err != nil {
		t.Fatalf("NewSampler() unexpected error: %v", err)
	}

	if err := first.Close(); err != nil {
		t.Fatalf("Close() unexpected error: %v", err)
	}

	if _, err := kept.Sample(); err != nil {
		t.Errorf("Sample() on the open client error = %v, want nil", err)
	}
	if _, err := closing.Sample(); err == nil {
		t.Error("Sample() on the closed client's sampler should fail")
	}
}

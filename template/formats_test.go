package template_test

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/tailored-agentic-units/llamachat/core/protocol"
	"github.com/tailored-agentic-units/llamachat/template"
)

func conversation() []protocol.Message {
	return []protocol.Message{
		protocol.NewMessage(protocol.RoleSystem, "Be brief."),
		protocol.NewMessage(protocol.RoleUser, "Hi"),
		protocol.NewMessage(protocol.RoleAssistant, "Hello"),
		protocol.NewMessage(protocol.RoleUser, "Bye"),
	}
}

func render(t *testing.T, name string, msgs []protocol.Message, addAssistant bool) string {
	t.Helper()
	r := template.NewRenderer(template.NewBuiltin(""), nil)
	got, err := r.Render(name, msgs, addAssistant)
	if err != nil {
		t.Fatalf("Render(%s) unexpected error: %v", name, err)
	}
	return got
}

func TestBuiltinFormats(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{
			name: template.ChatML,
			want: "<|im_start|>system\nBe brief.<|im_end|>\n" +
				"<|im_start|>user\nHi<|im_end|>\n" +
				"<|im_start|>assistant\nHello<|im_end|>\n" +
				"<|im_start|>user\nBye<|im_end|>\n" +
				"<|im_start|>assistant\n",
		},
		{
			name: template.Llama2,
			want: "[INST] <<SYS>>\nBe brief.\n<</SYS>>\n\nHi [/INST] Hello</s>[INST] Bye [/INST]",
		},
		{
			name: template.Llama3,
			want: "<|start_header_id|>system<|end_header_id|>\n\nBe brief.<|eot_id|>" +
				"<|start_header_id|>user<|end_header_id|>\n\nHi<|eot_id|>" +
				"<|start_header_id|>assistant<|end_header_id|>\n\nHello<|eot_id|>" +
				"<|start_header_id|>user<|end_header_id|>\n\nBye<|eot_id|>" +
				"<|start_header_id|>assistant<|end_header_id|>\n\n",
		},
		{
			name: template.Gemma,
			want: "<start_of_turn>user\nBe brief.\n\nHi<end_of_turn>\n" +
				"<start_of_turn>model\nHello<end_of_turn>\n" +
				"<start_of_turn>user\nBye<end_of_turn>\n" +
				"<start_of_turn>model\n",
		},
		{
			name: template.Phi3,
			want: "<|system|>\nBe brief.<|end|>\n<|user|>\nHi<|end|>\n" +
				"<|assistant|>\nHello<|end|>\n<|user|>\nBye<|end|>\n<|assistant|>\n",
		},
		{
			name: template.Zephyr,
			want: "<|system|>\nBe brief.<|endoftext|>\n<|user|>\nHi<|endoftext|>\n" +
				"<|assistant|>\nHello<|endoftext|>\n<|user|>\nBye<|endoftext|>\n<|assistant|>\n",
		},
		{
			name: template.Mistral,
			want: "[SYSTEM_PROMPT] Be brief.[/SYSTEM_PROMPT][INST] Hi[/INST] Hello</s>[INST] Bye[/INST]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := render(t, tt.name, conversation(), true); got != tt.want {
				t.Errorf("Render(%s) =\n%q\nwant\n%q", tt.name, got, tt.want)
			}
		})
	}
}

func TestGemma_SystemOnly(t *testing.T) {
	got := render(t, template.Gemma, protocol.InitMessages(protocol.RoleSystem, "Be brief."), false)
	want := "<start_of_turn>user\nBe brief.<end_of_turn>\n"
	if got != want {
		t.Errorf("Render(gemma) = %q, want %q", got, want)
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{name: "base model", source: "", want: ""},
		{name: "chatml", source: "{% for m in messages %}<|im_start|>{{ m.role }}", want: template.ChatML},
		{name: "llama3", source: "<|start_header_id|>' + role + '<|end_header_id|>", want: template.Llama3},
		{name: "gemma", source: "<start_of_turn>model", want: template.Gemma},
		{name: "phi3", source: "<|assistant|>...<|end|>", want: template.Phi3},
		{name: "zephyr", source: "<|user|>...<|endoftext|>", want: template.Zephyr},
		{name: "mistral", source: "[SYSTEM_PROMPT]...[INST]", want: template.Mistral},
		{name: "llama2", source: "[INST] <<SYS>>", want: template.Llama2},
		{name: "unknown falls back", source: "{{ bos_token }}", want: template.ChatML},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := template.Detect(tt.source); got != tt.want {
				t.Errorf("Detect() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuiltin_ModelDefault(t *testing.T) {
	f := template.NewBuiltin("<start_of_turn>")
	if f.Default() != template.Gemma {
		t.Fatalf("Default() = %q, want %q", f.Default(), template.Gemma)
	}

	r := template.NewRenderer(f, nil)
	got, err := r.Render("", protocol.InitMessages(protocol.RoleUser, "Hi"), true)
	if err != nil {
		t.Fatalf("Render() unexpected error: %v", err)
	}
	if want := "<start_of_turn>user\nHi<end_of_turn>\n<start_of_turn>model\n"; got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}

	if template.NewBuiltin("").Default() != template.ChatML {
		t.Error("base model default should be chatml")
	}
}

func TestBuiltin_InlineTemplate(t *testing.T) {
	src := `{{range .Messages}}{{.Role}}: {{trim .Content}}
{{end}}{{if .AddAssistant}}assistant:{{end}}`

	got := render(t, src, []protocol.Message{
		protocol.NewMessage(protocol.RoleUser, "  Hi  "),
	}, true)

	if want := "user: Hi\nassistant:"; got != want {
		t.Errorf("Render(inline) = %q, want %q", got, want)
	}
}

func TestBuiltin_InlineTemplateParseError(t *testing.T) {
	r := template.NewRenderer(template.NewBuiltin(""), nil)
	_, err := r.Render("{{range .Messages}", protocol.InitMessages(protocol.RoleUser, "Hi"), false)
	if !errors.Is(err, template.ErrApply) {
		t.Errorf("Render() error = %v, want %v", err, template.ErrApply)
	}
}

func TestRegistry(t *testing.T) {
	upper := func(b *strings.Builder, msgs []protocol.Message, _ bool) {
		for _, m := range msgs {
			b.WriteString(strings.ToUpper(m.Content))
		}
	}

	if err := template.Register("", upper); !errors.Is(err, template.ErrEmptyName) {
		t.Errorf("Register(\"\") error = %v, want %v", err, template.ErrEmptyName)
	}
	if err := template.Register("registry_upper", upper); err != nil {
		t.Fatalf("Register() unexpected error: %v", err)
	}
	if err := template.Register("registry_upper", upper); !errors.Is(err, template.ErrAlreadyExists) {
		t.Errorf("duplicate Register() error = %v, want %v", err, template.ErrAlreadyExists)
	}
	if err := template.Replace("registry_missing", upper); !errors.Is(err, template.ErrUnknownTemplate) {
		t.Errorf("Replace(missing) error = %v, want %v", err, template.ErrUnknownTemplate)
	}

	if got := render(t, "registry_upper", protocol.InitMessages(protocol.RoleUser, "hi"), false); got != "HI" {
		t.Errorf("Render(registry_upper) = %q, want %q", got, "HI")
	}

	names := template.Names()
	for _, want := range []string{template.ChatML, template.Llama3, "registry_upper"} {
		if !slices.Contains(names, want) {
			t.Errorf("Names() missing %q", want)
		}
	}
	if !slices.IsSorted(names) {
		t.Error("Names() should be sorted")
	}
}

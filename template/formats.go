package template

import (
	"strings"

	"github.com/tailored-agentic-units/llamachat/core/protocol"
)

// FormatFunc writes a complete rendering of messages into b.
type FormatFunc func(b *strings.Builder, messages []protocol.Message, addAssistant bool)

// Names of the built-in formats.
const (
	ChatML  = "chatml"
	Llama2  = "llama2"
	Llama3  = "llama3"
	Gemma   = "gemma"
	Phi3    = "phi3"
	Mistral = "mistral"
	Zephyr  = "zephyr"
)

func init() {
	for name, f := range map[string]FormatFunc{
		ChatML:  formatChatML,
		Llama2:  formatLlama2,
		Llama3:  formatLlama3,
		Gemma:   formatGemma,
		Phi3:    formatPhi3,
		Mistral: formatMistral,
		Zephyr:  formatZephyr,
	} {
		if err := Register(name, f); err != nil {
			panic(err)
		}
	}
}

// Detect classifies a model's embedded template source into the name of a
// built-in format by looking for the markers each family uses. An empty
// source returns "" (base model); unrecognised sources fall back to ChatML.
func Detect(source string) string {
	has := func(s string) bool { return strings.Contains(source, s) }

	switch {
	case source == "":
		return ""
	case has("<|im_start|>"):
		return ChatML
	case has("<|start_header_id|>") && has("<|end_header_id|>"):
		return Llama3
	case has("<start_of_turn>"):
		return Gemma
	case has("<|assistant|>") && has("<|end|>"):
		return Phi3
	case has("<|user|>") && has("<|endoftext|>"):
		return Zephyr
	case has("[SYSTEM_PROMPT]"):
		return Mistral
	case has("[INST]"):
		return Llama2
	default:
		return ChatML
	}
}

func formatChatML(b *strings.Builder, messages []protocol.Message, addAssistant bool) {
	for _, m := range messages {
		b.WriteString("<|im_start|>")
		b.WriteString(string(m.Role))
		b.WriteString("\n")
		b.WriteString(m.Content)
		b.WriteString("<|im_end|>\n")
	}
	if addAssistant {
		b.WriteString("<|im_start|>assistant\n")
	}
}

func formatLlama2(b *strings.Builder, messages []protocol.Message, _ bool) {
	open := false
	for _, m := range messages {
		if !open {
			b.WriteString("[INST] ")
			open = true
		}
		switch m.Role {
		case protocol.RoleSystem:
			b.WriteString("<<SYS>>\n")
			b.WriteString(m.Content)
			b.WriteString("\n<</SYS>>\n\n")
		case protocol.RoleUser:
			b.WriteString(m.Content)
			b.WriteString(" [/INST]")
		default:
			b.WriteString(" ")
			b.WriteString(m.Content)
			b.WriteString("</s>")
			open = false
		}
	}
}

func formatLlama3(b *strings.Builder, messages []protocol.Message, addAssistant bool) {
	for _, m := range messages {
		b.WriteString("<|start_header_id|>")
		b.WriteString(string(m.Role))
		b.WriteString("<|end_header_id|>\n\n")
		b.WriteString(strings.TrimSpace(m.Content))
		b.WriteString("<|eot_id|>")
	}
	if addAssistant {
		b.WriteString("<|start_header_id|>assistant<|end_header_id|>\n\n")
	}
}

// formatGemma folds system text into the next user turn; the family has
// no system role and calls the assistant "model".
func formatGemma(b *strings.Builder, messages []protocol.Message, addAssistant bool) {
	var system string
	for _, m := range messages {
		if m.Role == protocol.RoleSystem {
			system += strings.TrimSpace(m.Content) + "\n\n"
			continue
		}
		role := "user"
		if m.Role == protocol.RoleAssistant {
			role = "model"
		}
		b.WriteString("<start_of_turn>")
		b.WriteString(role)
		b.WriteString("\n")
		if role == "user" {
			b.WriteString(system)
			system = ""
		}
		b.WriteString(strings.TrimSpace(m.Content))
		b.WriteString("<end_of_turn>\n")
	}
	if system != "" {
		b.WriteString("<start_of_turn>user\n")
		b.WriteString(strings.TrimSuffix(system, "\n\n"))
		b.WriteString("<end_of_turn>\n")
	}
	if addAssistant {
		b.WriteString("<start_of_turn>model\n")
	}
}

func formatPhi3(b *strings.Builder, messages []protocol.Message, addAssistant bool) {
	tagged(b, messages, addAssistant, "<|end|>")
}

func formatZephyr(b *strings.Builder, messages []protocol.Message, addAssistant bool) {
	tagged(b, messages, addAssistant, "<|endoftext|>")
}

func tagged(b *strings.Builder, messages []protocol.Message, addAssistant bool, end string) {
	for _, m := range messages {
		b.WriteString("<|")
		b.WriteString(string(m.Role))
		b.WriteString("|>\n")
		b.WriteString(m.Content)
		b.WriteString(end)
		b.WriteString("\n")
	}
	if addAssistant {
		b.WriteString("<|assistant|>\n")
	}
}

func formatMistral(b *strings.Builder, messages []protocol.Message, _ bool) {
	for _, m := range messages {
		switch m.Role {
		case protocol.RoleSystem:
			b.WriteString("[SYSTEM_PROMPT] ")
			b.WriteString(m.Content)
			b.WriteString("[/SYSTEM_PROMPT]")
		case protocol.RoleUser:
			b.WriteString("[INST] ")
			b.WriteString(m.Content)
			b.WriteString("[/INST]")
		default:
			b.WriteString(" ")
			b.WriteString(m.Content)
			b.WriteString("</s>")
		}
	}
}

package llm

import (
	"context"
	"testing"

	"github.com/Alserial/VoiceRAG/internal/utils"
)

func TestStripCodeFence(t *testing.T) {
	tests := []struct{ in, want string }{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  {\"a\":1}  ", `{"a":1}`},
	}
	for _, tt := range tests {
		if got := stripCodeFence(tt.in); got != tt.want {
			t.Errorf("stripCodeFence(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestUnconfigured(t *testing.T) {
	var p Unconfigured
	if p.Configured() {
		t.Error("Configured() = true")
	}
	if _, err := p.ExtractJSON(context.Background(), "s", "i"); !utils.IsCode(err, utils.CodeUnavailable) {
		t.Errorf("ExtractJSON() error = %v, want unavailable", err)
	}
	if _, err := p.Classify(context.Background(), "s", "i", []string{"a"}); !utils.IsCode(err, utils.CodeUnavailable) {
		t.Errorf("Classify() error = %v, want unavailable", err)
	}
	if _, err := p.Embed(context.Background(), "t"); !utils.IsCode(err, utils.CodeUnavailable) {
		t.Errorf("Embed() error = %v, want unavailable", err)
	}
}

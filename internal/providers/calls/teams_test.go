package calls

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/Alserial/VoiceRAG/internal/utils"
)

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

func TestConfigComplete(t *testing.T) {
	full := TeamsConfig{
		TenantID:     "tenant",
		ClientID:     "client",
		ClientSecret: "secret",
		CallbackURL:  "https://bot.example.com/api/calls/events",
	}
	if !full.complete() {
		t.Error("full config reported incomplete")
	}

	for _, cfg := range []TeamsConfig{
		{ClientID: "client", ClientSecret: "secret", CallbackURL: "https://x"},
		{TenantID: "tenant", ClientSecret: "secret", CallbackURL: "https://x"},
		{TenantID: "tenant", ClientID: "client", CallbackURL: "https://x"},
		{TenantID: "tenant", ClientID: "client", ClientSecret: "secret"},
	} {
		if cfg.complete() {
			t.Errorf("config %+v reported complete", cfg)
		}
	}
}

func TestNewTeamsCallerValidation(t *testing.T) {
	if _, err := NewTeamsCaller(TeamsConfig{}, testLog()); !utils.IsCode(err, utils.CodeUnavailable) {
		t.Errorf("empty config: got %v, want unavailable", err)
	}

	cfg := TeamsConfig{
		TenantID:     "tenant",
		ClientID:     "client",
		ClientSecret: "secret",
		CallbackURL:  "http://bot.example.com/api/calls/events",
	}
	if _, err := NewTeamsCaller(cfg, testLog()); !utils.IsCode(err, utils.CodeInvalidArgument) {
		t.Errorf("http callback: got %v, want invalid_argument", err)
	}
}

func TestUserInputShape(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"0f64b295-3a80-4a3f-9b78-2a33cb14a6eb", true},
		{"0F64B295-3A80-4A3F-9B78-2A33CB14A6EB", true},
		{"alice@example.com", false},
		{"0f64b295-3a80-4a3f-9b78", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := uuidRe.MatchString(tt.input); got != tt.want {
			t.Errorf("uuidRe(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestUnavailableProvider(t *testing.T) {
	var p Caller = Unavailable{}
	ctx := context.Background()

	if p.Available() {
		t.Error("Unavailable reported available")
	}
	if _, err := p.CallPhone(ctx, "+15551234567"); !utils.IsCode(err, utils.CodeUnavailable) {
		t.Errorf("CallPhone: got %v, want unavailable", err)
	}
	if _, err := p.CallTeamsUser(ctx, "alice@example.com"); !utils.IsCode(err, utils.CodeUnavailable) {
		t.Errorf("CallTeamsUser: got %v, want unavailable", err)
	}
	if err := p.End(ctx, "call-1"); !utils.IsCode(err, utils.CodeUnavailable) {
		t.Errorf("End: got %v, want unavailable", err)
	}
}

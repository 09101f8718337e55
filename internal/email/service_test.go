package email

import (
	"errors"
	"net/smtp"
	"strings"
	"testing"
)

func TestServiceIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{name: "empty config", config: Config{}, expected: false},
		{name: "missing host", config: Config{Port: "587", From: "test@example.com"}, expected: false},
		{name: "missing port", config: Config{Host: "smtp.example.com", From: "test@example.com"}, expected: false},
		{name: "missing from", config: Config{Host: "smtp.example.com", Port: "587"}, expected: false},
		{name: "fully configured", config: Config{Host: "smtp.example.com", Port: "587", From: "test@example.com"}, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.config)
			if svc.IsConfigured() != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", svc.IsConfigured(), tt.expected)
			}
		})
	}
}

func TestRenderInviteTemplate(t *testing.T) {
	data := InviteData{
		AppName:     "Spaces",
		InviterName: "Ann",
		SpaceName:   "Reading List",
		Level:       "Edit",
		Note:        "<b>have a look</b>",
		SpaceURL:    "https://spaces.example.com/s/sp_1",
	}

	html, err := render(inviteTemplate, data)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	for _, want := range []string{"Ann", "Reading List", "Edit", "https://spaces.example.com/s/sp_1"} {
		if !strings.Contains(html, want) {
			t.Errorf("template should contain %q", want)
		}
	}
	if strings.Contains(html, "<b>have a look</b>") {
		t.Error("note must be HTML-escaped")
	}
}

func TestRenderPublicLinkTemplateWithoutNote(t *testing.T) {
	html, err := render(publicLinkTemplate, PublicLinkData{
		AppName:    "Spaces",
		SenderName: "Ann",
		SpaceName:  "Trips",
		LinkURL:    "https://spaces.example.com/p/sp_2",
	})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if strings.Contains(html, `class="note"`+">") {
		t.Error("empty note should not render a note block")
	}
	if !strings.Contains(html, "https://spaces.example.com/p/sp_2") {
		t.Error("template should contain the link")
	}
}

func TestSendSpaceInviteUsesSMTP(t *testing.T) {
	svc := NewService(Config{Host: "smtp.example.com", Port: "587", From: "noreply@example.com", FromName: "Spaces"})
	var gotTo []string
	var gotMsg string
	svc.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		if addr != "smtp.example.com:587" {
			t.Errorf("addr = %s", addr)
		}
		gotTo = to
		gotMsg = string(msg)
		return nil
	}

	err := svc.SendSpaceInvite("bob@example.com", InviteData{InviterName: "Ann", SpaceName: "Reading List", Level: "Edit", SpaceURL: "https://x"})
	if err != nil {
		t.Fatalf("SendSpaceInvite: %v", err)
	}
	if len(gotTo) != 1 || gotTo[0] != "bob@example.com" {
		t.Fatalf("to = %v", gotTo)
	}
	if !strings.Contains(gotMsg, `Subject: Ann shared "Reading List" with you`) {
		t.Fatalf("unexpected message:\n%s", gotMsg)
	}
	if !strings.Contains(gotMsg, "From: Spaces <noreply@example.com>") {
		t.Fatalf("missing from header:\n%s", gotMsg)
	}
	if !strings.Contains(gotMsg, "Content-Type: text/plain") || !strings.Contains(gotMsg, "Content-Type: text/html") {
		t.Fatalf("expected both alternative parts:\n%s", gotMsg)
	}
}

func TestSendFailsWhenUnconfigured(t *testing.T) {
	svc := NewService(Config{})
	svc.send = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("should not be called")
	}
	if err := svc.SendPublicLink("bob@example.com", PublicLinkData{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSubjectIsEncodedWhenNotASCII(t *testing.T) {
	svc := NewService(Config{Host: "smtp.example.com", Port: "25", From: "noreply@example.com"})
	var gotMsg string
	svc.send = func(_ string, a smtp.Auth, _ string, _ []string, msg []byte) error {
		if a != nil {
			t.Errorf("expected no auth without a username")
		}
		gotMsg = string(msg)
		return nil
	}
	if err := svc.SendPublicLink("bob@example.com", PublicLinkData{SenderName: "Zoë", SpaceName: "Café", LinkURL: "https://x"}); err != nil {
		t.Fatalf("SendPublicLink: %v", err)
	}
	if !strings.Contains(gotMsg, "Subject: =?utf-8?q?") {
		t.Fatalf("expected an encoded subject:\n%s", gotMsg)
	}
	if !strings.Contains(gotMsg, "From: noreply@example.com\r\n") {
		t.Fatalf("expected a bare from address:\n%s", gotMsg)
	}
}

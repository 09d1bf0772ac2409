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

func TestSendInvitationRequiresConfig(t *testing.T) {
	svc := NewService(Config{})
	if err := svc.SendInvitation("bob@example.com", InvitationData{BoardName: "Roadmap"}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("SendInvitation() error = %v, want ErrNotConfigured", err)
	}
}

func TestSendInvitation(t *testing.T) {
	svc := NewService(Config{Host: "smtp.example.com", Port: "587", From: "noreply@example.com", FromName: "Task Planner"})

	var gotAddr string
	var gotTo []string
	var gotMsg string
	svc.sendMail = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	err := svc.SendInvitation("bob@example.com", InvitationData{
		InviteeName: "bob",
		InviterName: "ada",
		BoardName:   "Roadmap <2027>",
		RequestsURL: "https://planner.example.com/requests",
	})
	if err != nil {
		t.Fatalf("SendInvitation() error = %v", err)
	}
	if gotAddr != "smtp.example.com:587" || len(gotTo) != 1 || gotTo[0] != "bob@example.com" {
		t.Fatalf("unexpected envelope: %s %v", gotAddr, gotTo)
	}
	for _, want := range []string{
		"From: Task Planner <noreply@example.com>",
		"Subject: You were invited to Roadmap <2027>",
		"Roadmap &lt;2027&gt;",
		"https://planner.example.com/requests",
		"multipart/alternative",
	} {
		if !strings.Contains(gotMsg, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

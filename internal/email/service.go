// Package email sends space invitations and public link shares over SMTP.
package email

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"mime"
	"net/mail"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrNotConfigured = errors.New("email: smtp not configured")

type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
	AppName  string
}

type Service struct {
	config Config
	server string
	auth   smtp.Auth
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	now    func() time.Time
}

func NewService(config Config) *Service {
	if config.AppName == "" {
		config.AppName = "Spaces"
	}
	s := &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		send:   smtp.SendMail,
		now:    time.Now,
	}
	if config.Username != "" {
		s.auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return s
}

func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

type InviteData struct {
	AppName     string
	InviterName string
	SpaceName   string
	Level       string
	Note        string
	SpaceURL    string
}

type PublicLinkData struct {
	AppName    string
	SenderName string
	SpaceName  string
	Note       string
	LinkURL    string
}

// SendSpaceInvite tells a newly granted user about the space.
func (s *Service) SendSpaceInvite(to string, data InviteData) error {
	data.AppName = s.config.AppName
	body, err := render(inviteTemplate, data)
	if err != nil {
		return fmt.Errorf("email: render invite: %w", err)
	}
	return s.deliver(message{
		to:      to,
		subject: fmt.Sprintf("%s shared %q with you", data.InviterName, data.SpaceName),
		text:    fmt.Sprintf("%s gave you %s access to %s: %s", data.InviterName, strings.ToLower(data.Level), data.SpaceName, data.SpaceURL),
		html:    body,
	})
}

// SendPublicLink emails an existing public link. It grants nothing.
func (s *Service) SendPublicLink(to string, data PublicLinkData) error {
	data.AppName = s.config.AppName
	body, err := render(publicLinkTemplate, data)
	if err != nil {
		return fmt.Errorf("email: render public link: %w", err)
	}
	return s.deliver(message{
		to:      to,
		subject: fmt.Sprintf("%s sent you %q", data.SenderName, data.SpaceName),
		text:    fmt.Sprintf("%s sent you a link to %s: %s", data.SenderName, data.SpaceName, data.LinkURL),
		html:    body,
	})
}

type message struct {
	to      string
	subject string
	text    string
	html    string
}

func (s *Service) deliver(m message) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}
	return s.send(s.server, s.auth, s.config.From, []string{m.to}, s.compose(m))
}

// compose builds a multipart/alternative message with a plain text part
// followed by the HTML part.
func (s *Service) compose(m message) []byte {
	from := (&mail.Address{Name: s.config.FromName, Address: s.config.From}).String()
	if s.config.FromName == "" {
		from = s.config.From
	}
	boundary := "spaces-" + strings.ReplaceAll(uuid.NewString(), "-", "")

	var b bytes.Buffer
	header := func(k, v string) { fmt.Fprintf(&b, "%s: %s\r\n", k, v) }
	header("To", m.to)
	header("From", from)
	header("Subject", mime.QEncoding.Encode("utf-8", m.subject))
	header("Date", s.now().Format(time.RFC1123Z))
	header("MIME-Version", "1.0")
	header("Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", boundary))
	b.WriteString("\r\n")

	for _, part := range []struct{ kind, body string }{{"text/plain", m.text}, {"text/html", m.html}} {
		fmt.Fprintf(&b, "--%s\r\nContent-Type: %s; charset=UTF-8\r\n\r\n%s\r\n\r\n", boundary, part.kind, part.body)
	}
	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return b.Bytes()
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const layout = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{template "title" .}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.5; color: #222; max-width: 560px; margin: 0 auto; padding: 24px; }
        h1 { font-size: 18px; color: #3b5bdb; margin: 0 0 16px; }
        .cta { display: inline-block; padding: 10px 20px; background: #3b5bdb; color: #fff; text-decoration: none; border-radius: 6px; margin: 16px 0; }
        .note { background: #f1f3f5; padding: 12px; border-radius: 6px; margin: 16px 0; white-space: pre-wrap; }
        .fine { font-size: 12px; color: #868e96; word-break: break-all; }
    </style>
</head>
<body>
    <h1>{{.AppName}}</h1>
    {{template "body" .}}
    {{if .Note}}<div class="note">{{.Note}}</div>{{end}}
</body>
</html>`

var (
	inviteTemplate = template.Must(template.Must(template.New("invite").Parse(layout)).Parse(`
{{define "title"}}{{.InviterName}} shared a space with you{{end}}
{{define "body"}}
    <h2>{{.InviterName}} shared "{{.SpaceName}}" with you</h2>
    <p>You can now <strong>{{.Level}}</strong> this space.</p>
    <a class="cta" href="{{.SpaceURL}}">Open space</a>
    <p class="fine">You got this email because {{.InviterName}} added you on {{.AppName}}.</p>
{{end}}`))

	publicLinkTemplate = template.Must(template.Must(template.New("public-link").Parse(layout)).Parse(`
{{define "title"}}{{.SenderName}} sent you a space{{end}}
{{define "body"}}
    <h2>{{.SenderName}} sent you "{{.SpaceName}}"</h2>
    <a class="cta" href="{{.LinkURL}}">View space</a>
    <p class="fine">{{.LinkURL}}</p>
{{end}}`))
)

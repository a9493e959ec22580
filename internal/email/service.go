// Package email sends notification mail via SMTP. The access and
// consolidation core never touches this package; only collaborator and
// account flows do.
package email

import (
	"fmt"
	"net/smtp"
	"strings"
)

type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

type Service struct {
	config Config
	server string
	auth   smtp.Auth
}

func NewService(config Config) *Service {
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   smtp.PlainAuth("", config.Username, config.Password, config.Host),
	}
}

// IsConfigured reports whether sending is possible; callers skip mail
// silently when it is not.
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

func (s *Service) Send(to []string, subject, body string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	msg := []byte(fmt.Sprintf(
		"To: %s\r\nFrom: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		strings.Join(to, ", "), from, subject, body,
	))

	return smtp.SendMail(s.server, s.auth, s.config.From, to, msg)
}

// SendCollaboratorInvite tells a user they were added to a resource.
func (s *Service) SendCollaboratorInvite(to, inviterName, resourceKind, resourceName string) error {
	subject := fmt.Sprintf("You were added to %s", resourceName)
	body := fmt.Sprintf(
		"%s added you as a collaborator on the %s %q.\r\n\r\nSign in to see its tasks.\r\n",
		inviterName, resourceKind, resourceName,
	)
	return s.Send([]string{to}, subject, body)
}

// SendVerification delivers the email-verification token link.
func (s *Service) SendVerification(to, verifyURL string) error {
	return s.Send([]string{to}, "Verify your email",
		fmt.Sprintf("Welcome to Trackline. Verify your email:\r\n\r\n%s\r\n", verifyURL))
}

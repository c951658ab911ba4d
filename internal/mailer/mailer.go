// Package mailer submits single-recipient messages over SMTP.
package mailer

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/wneessen/go-mail"
)

// Config holds SMTP submission settings. Port 465 uses implicit TLS; other
// ports upgrade with STARTTLS when the server offers it.
type Config struct {
	Host string
	Port int
	User string
	Pass string
	From string
	To   string
}

// Message is one outgoing mail.
type Message struct {
	Subject string
	HTML    string
	Text    string
}

// Mailer sends messages through one SMTP server.
type Mailer struct {
	cfg  Config
	send func(ctx context.Context, msg *mail.Msg) error
}

// New creates a Mailer.
func New(cfg Config) (*Mailer, error) {
	if cfg.Host == "" || cfg.From == "" || cfg.To == "" {
		return nil, eris.New("mailer: host, from and to are required")
	}
	m := &Mailer{cfg: cfg}
	m.send = m.dialAndSend
	return m, nil
}

// Send builds and submits msg.
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	out, err := m.build(msg)
	if err != nil {
		return err
	}
	if err := m.send(ctx, out); err != nil {
		return eris.Wrap(err, "mailer: send")
	}
	return nil
}

func (m *Mailer) build(msg Message) (*mail.Msg, error) {
	out := mail.NewMsg()
	if err := out.From(m.cfg.From); err != nil {
		return nil, eris.Wrap(err, "mailer: from address")
	}
	if err := out.To(m.cfg.To); err != nil {
		return nil, eris.Wrap(err, "mailer: to address")
	}
	out.Subject(msg.Subject)
	switch {
	case msg.Text != "" && msg.HTML != "":
		out.SetBodyString(mail.TypeTextPlain, msg.Text)
		out.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
	case msg.HTML != "":
		out.SetBodyString(mail.TypeTextHTML, msg.HTML)
	default:
		out.SetBodyString(mail.TypeTextPlain, msg.Text)
	}
	return out, nil
}

func (m *Mailer) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	opts := []mail.Option{mail.WithPort(m.cfg.Port)}
	if m.cfg.Port == 465 {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	if m.cfg.User != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.User),
			mail.WithPassword(m.cfg.Pass),
		)
	}
	client, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return eris.Wrap(err, "mailer: new client")
	}
	return client.DialAndSendWithContext(ctx, msg)
}

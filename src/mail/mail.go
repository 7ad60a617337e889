package mail

import (
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	helper "github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Config carries the sendgrid credentials and sender identity.
type Config struct {
	APIKey   string
	FromName string
	FromAddr string
}

// Enabled reports whether mail delivery is configured.
func (c Config) Enabled() bool {
	return c.APIKey != ""
}

type Email struct {
	Name    string
	To      string
	Subject string
	Plain   string
	Html    string
}

func SendMail(config Config, email Email) error {
	from := helper.NewEmail(config.FromName, config.FromAddr)
	to := helper.NewEmail(email.Name, email.To)
	message := helper.NewSingleEmail(from, email.Subject, to, email.Plain, email.Html)
	client := sendgrid.NewSendClient(config.APIKey)

	_, err := client.Send(message)
	if err != nil {
		return err
	}

	return nil
}

// SendLicenseMail delivers a freshly created license key to its owner.
func SendLicenseMail(config Config, emailTo string, licenseKey string) error {
	email := Email{
		Name:    emailTo,
		To:      emailTo,
		Subject: "Your License Key is Here!",
		Plain:   fmt.Sprintf("Your license key: %s\n", licenseKey),
		Html:    fmt.Sprintf("<h1>Your License Key</h1><p>%s</p>", licenseKey),
	}

	if err := SendMail(config, email); err != nil {
		return err
	}

	return nil
}

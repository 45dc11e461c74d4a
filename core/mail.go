package core

import "net/mail"

type (
	// EmailMessage is a plain-text transactional email.
	EmailMessage struct {
		To          []mail.Address
		Subject     string
		TextContent string
	}

	// EmailService sends messages in the background; implementations
	// must not block the caller.
	EmailService interface {
		SendMessages(messages ...*EmailMessage)
	}
)

func (m EmailMessage) HasRecipients() bool { return len(m.To) > 0 }

func (m EmailMessage) HasContent() bool { return m.TextContent != "" }

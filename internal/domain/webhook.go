package domain

// ObjectPage es el único tipo de objeto que procesa el webhook.
const ObjectPage = "page"

// WebhookPayload es el cuerpo que Messenger envía a POST /webhook.
type WebhookPayload struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

type WebhookEntry struct {
	ID        string           `json:"id"`
	Time      int64            `json:"time"`
	Messaging []MessagingEvent `json:"messaging"`
}

type MessagingEvent struct {
	Sender    Participant       `json:"sender"`
	Recipient Participant       `json:"recipient"`
	Timestamp int64             `json:"timestamp"`
	Message   *IncomingMessage `json:"message,omitempty"`
}

type Participant struct {
	ID string `json:"id"`
}

type IncomingMessage struct {
	MID    string `json:"mid"`
	Text   string `json:"text"`
	IsEcho bool   `json:"is_echo,omitempty"`
}

// InboundText es un mensaje de texto listo para el relay.
type InboundText struct {
	SenderID string
	MID      string
	Text     string
}

// TextMessages extrae los mensajes de texto de usuarios, ignorando ecos y eventos sin texto.
func (p WebhookPayload) TextMessages() []InboundText {
	var out []InboundText
	for _, entry := range p.Entry {
		for _, event := range entry.Messaging {
			if event.Message == nil || event.Message.IsEcho {
				continue
			}
			if event.Sender.ID == "" || event.Message.Text == "" {
				continue
			}
			out = append(out, InboundText{
				SenderID: event.Sender.ID,
				MID:      event.Message.MID,
				Text:     event.Message.Text,
			})
		}
	}
	return out
}

package emailsvc

import (
	"encoding/json"
	"io"
	"log"
	"net/mail"
	"strings"
	"testing"

	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/colegio/core"
	"github.com/trezcool/colegio/services/logger"
)

func newMock(t *testing.T) (*ConsoleServiceMock, *core.Config) {
	t.Helper()
	conf := core.NewTestConfig()
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
	core.ParseEmailTemplates(logger)
	return NewConsoleServiceMock(conf, logger), conf
}

func reviewedMessage() *core.EmailMessage {
	return &core.EmailMessage{
		To:           []mail.Address{{Name: "María Pérez", Address: "mperez@test.ve"}},
		Subject:      "Pago 0001: Aprobado",
		TemplateName: "payment_reviewed",
		TemplateData: map[string]string{
			"RepresentativeName": "María Pérez",
			"ReferenceNumber":    "0001",
			"Concept":            "Mensualidad",
			"StudentName":        "Ana Pérez",
			"AmountUSD":          "20.00",
			"AmountBs":           "729.20",
			"StatusText":         "Aprobado",
			"AdminNote":          "",
		},
	}
}

func TestConsoleServiceMock_SendMessages(t *testing.T) {
	svc, _ := newMock(t)

	noRecipient := reviewedMessage()
	noRecipient.To = nil
	empty := &core.EmailMessage{To: []mail.Address{{Address: "x@test.ve"}}, Subject: "empty"}

	svc.SendMessages(reviewedMessage(), noRecipient, empty)
	sent := svc.SentMessages()
	require.Len(t, sent, 1, "messages without recipients or content are dropped")

	msg := sent[0]
	assert.Contains(t, msg.TextContent, "Hola María Pérez")
	assert.Contains(t, msg.TextContent, "20.00 USD / 729.20 Bs fue Aprobado")
	assert.NotContains(t, msg.TextContent, "Nota:")
	assert.NotEmpty(t, msg.HTMLContent)

	svc.Reset()
	assert.Empty(t, svc.SentMessages())
}

func TestConsoleService_send_withAttachment(t *testing.T) {
	svc, _ := newMock(t)
	msg := core.EmailMessage{
		To:      []mail.Address{{Address: "mperez@test.ve"}},
		Subject: "Boletín",
		BodyStr: "adjunto",
	}
	require.NoError(t, msg.Attach(strings.NewReader("Materia,Lapso 1\n"), "boletin.csv", "text/csv"))
	require.NoError(t, msg.Render(""))

	assert.Equal(t, "TWF0ZXJpYSxMYXBzbyAxCg==", msg.Attachments[0].Content.String())
	assert.NoError(t, svc.send(msg))
}

func TestSendgridService_prepare(t *testing.T) {
	conf := core.NewTestConfig()
	conf.SendgridApiKey = "key"
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
	core.ParseEmailTemplates(logger)
	svc := NewSendgridService(conf, logger).(*sendgridService)

	msg := reviewedMessage()
	msg.Cc = []mail.Address{{Address: "oficina@test.ve"}}
	require.NoError(t, msg.Render(conf.FrontendBaseURL))
	require.NoError(t, msg.Attach(strings.NewReader("a,b\n"), "r.csv", "text/csv"))

	var body struct {
		From struct {
			Email string `json:"email"`
		} `json:"from"`
		Personalizations []struct {
			Subject string `json:"subject"`
			To      []struct {
				Email string `json:"email"`
			} `json:"to"`
			CC []struct {
				Email string `json:"email"`
			} `json:"cc"`
		} `json:"personalizations"`
		Content []struct {
			Type string `json:"type"`
		} `json:"content"`
		Attachments []struct {
			Filename string `json:"filename"`
			Type     string `json:"type"`
		} `json:"attachments"`
	}
	sg := svc.prepare(*msg)
	require.NoError(t, json.Unmarshal(sgmail.GetRequestBody(sg), &body))

	assert.Equal(t, "noreply@localhost", body.From.Email)
	require.Len(t, body.Personalizations, 1)
	assert.Equal(t, "[Colegio] Pago 0001: Aprobado", body.Personalizations[0].Subject)
	assert.Equal(t, "mperez@test.ve", body.Personalizations[0].To[0].Email)
	assert.Equal(t, "oficina@test.ve", body.Personalizations[0].CC[0].Email)
	require.Len(t, body.Content, 2)
	assert.Equal(t, "text/plain", body.Content[0].Type)
	assert.Equal(t, "text/html", body.Content[1].Type)
	require.Len(t, body.Attachments, 1)
	assert.Equal(t, "r.csv", body.Attachments[0].Filename)
}

package emailsvc

import (
	"net/mail"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/schoolgate/core"
)

func TestConsoleService(t *testing.T) {
	conf := core.NewTestConfig()
	conf.FrontendBaseURL = "http://school.test"
	svc := NewConsoleServiceMock(conf)

	assert.NoError(t, core.RegisterEmailTemplate("welcome", "Hi {{.Data}}, see {{.FrontendBaseURL}}", "<p>Hi {{.Data}}</p>"))
	svc.SendMessages(
		&core.EmailMessage{
			To:           []mail.Address{{Name: "Amani", Address: "amani@school.cd"}},
			Subject:      "Welcome",
			TemplateName: "welcome",
			TemplateData: "Amani",
		},
		&core.EmailMessage{Subject: "nobody", BodyStr: "dropped"},
		&core.EmailMessage{To: []mail.Address{{Address: "x@school.cd"}}, TemplateName: "missing"},
	)

	sent := svc.SentMessages()
	if assert.Len(t, sent, 1) {
		assert.Equal(t, "Hi Amani, see http://school.test", sent[0].TextContent)
		assert.Equal(t, "<p>Hi Amani</p>", sent[0].HTMLContent)
	}

	raw, err := svc.format(sent[0])
	assert.NoError(t, err)
	assert.Contains(t, raw, "Subject: [Sekolah] Welcome")
	assert.Contains(t, raw, `To: "Amani" <amani@school.cd>`)
}

func TestSendgridPrepare(t *testing.T) {
	conf := core.NewTestConfig()
	conf.SendgridApiKey = "key"
	svc := NewSendgridService(conf, core.NopLogger())

	m := svc.prepare(core.EmailMessage{
		To:          []mail.Address{{Address: "a@school.cd"}},
		Cc:          []mail.Address{{Address: "b@school.cd"}},
		Subject:     "Status",
		TextContent: "text",
	})
	if assert.Len(t, m.Personalizations, 1) {
		assert.Equal(t, "[Sekolah] Status", m.Personalizations[0].Subject)
		assert.Len(t, m.Personalizations[0].To, 1)
		assert.Len(t, m.Personalizations[0].CC, 1)
	}
	assert.Len(t, m.Content, 1)

	_, isConsole := NewService(conf, nil).(*consoleService)
	assert.True(t, isConsole, "test mode never talks to sendgrid")
}

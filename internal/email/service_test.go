package email

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/intake-api/pkg/logger"
)

type captureSender struct {
	sent []*gomail.Message
	err  error
}

func (c *captureSender) DialAndSend(m ...*gomail.Message) error {
	c.sent = append(c.sent, m...)
	return c.err
}

func TestSMTPService_SendCustom(t *testing.T) {
	sender := &captureSender{}
	svc := NewServiceWithSender("triage@clinic.test", sender)

	require.NoError(t, svc.SendCustom(context.Background(), "oncall@clinic.test", "URGENT", "body text"))
	require.Len(t, sender.sent, 1)
	m := sender.sent[0]
	assert.Equal(t, []string{"triage@clinic.test"}, m.GetHeader("From"))
	assert.Equal(t, []string{"oncall@clinic.test"}, m.GetHeader("To"))
	assert.Equal(t, []string{"URGENT"}, m.GetHeader("Subject"))

	var buf bytes.Buffer
	_, err := m.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "body text")
}

func TestSMTPService_SendError(t *testing.T) {
	svc := NewServiceWithSender("a@b.c", &captureSender{err: errors.New("relay down")})
	err := svc.SendCustom(context.Background(), "x@y.z", "s", "c")
	assert.ErrorContains(t, err, "relay down")
}

func TestSMTPService_CancelledContext(t *testing.T) {
	sender := &captureSender{}
	svc := NewServiceWithSender("a@b.c", sender)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, svc.SendCustom(ctx, "x@y.z", "s", "c"), context.Canceled)
	assert.Empty(t, sender.sent)
}

func TestLogService(t *testing.T) {
	assert.NoError(t, NewLogService(logger.Nop()).SendCustom(context.Background(), "x", "s", "c"))
}

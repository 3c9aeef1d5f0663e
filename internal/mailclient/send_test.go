package mailclient

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/lgwanai/email-mcp/internal/config"
	"github.com/lgwanai/email-mcp/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testSender() config.Account {
	return config.Account{
		Address:     "sender@example.com",
		DisplayName: "Sender",
		Password:    "secret",
		SMTPHost:    "smtp.example.com",
		SMTPPort:    465,
		SMTPSSL:     true,
	}
}

func TestValidateAttachment(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "doc.txt")
	require.NoError(t, os.WriteFile(good, []byte("content"), 0o644))
	assert.NoError(t, validateAttachment(good))

	assert.Error(t, validateAttachment(filepath.Join(dir, "missing.txt")))
	assert.Error(t, validateAttachment(dir))
}

func TestValidateSendRejectsBeforeAnyWork(t *testing.T) {
	err := validateSend(model.SendRequest{
		To:              []string{"rcpt@example.com"},
		AttachmentPaths: []string{"/does/not/exist.bin"},
	})
	require.Error(t, err)

	var se *SendError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "/does/not/exist.bin", se.Path)
}

func TestValidateSendRequiresRecipients(t *testing.T) {
	err := validateSend(model.SendRequest{Subject: "no one to read this"})
	assert.Error(t, err)
}

func TestBuildMessageRoundTrip(t *testing.T) {
	dir := t.TempDir()
	attPath := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(attPath, []byte("attached notes"), 0o644))

	raw, err := buildMessage(testSender(), model.SendRequest{
		To:              []string{"rcpt@example.com"},
		CC:              []string{"cc@example.com"},
		Subject:         "Build check",
		Body:            "The plain text body of the outbound message.",
		HTMLBody:        "<p>The rendered alternative of the outbound message.</p>",
		AttachmentPaths: []string{attPath},
	})
	require.NoError(t, err)

	msg, err := DecodeMessage("out", bytes.NewReader(raw))
	require.NoError(t, err)

	assert.Equal(t, "Sender <sender@example.com>", msg.Sender)
	assert.Equal(t, []string{"rcpt@example.com"}, msg.Recipients)
	assert.Equal(t, []string{"cc@example.com"}, msg.CC)
	assert.Equal(t, "Build check", msg.Subject)

	// The decoder prefers the rendered HTML alternative when it is substantial.
	assert.Equal(t, "The rendered alternative of the outbound message.", msg.Body)

	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "notes.txt", msg.Attachments[0].Filename)
	assert.Equal(t, []byte("attached notes"), msg.Attachments[0].Data)
}

func TestBuildMessageWithoutAttachments(t *testing.T) {
	raw, err := buildMessage(testSender(), model.SendRequest{
		To:      []string{"rcpt@example.com"},
		Subject: "Plain",
		Body:    "Just a body, nothing attached to this one.",
	})
	require.NoError(t, err)

	msg, err := DecodeMessage("out", bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Empty(t, msg.Attachments)
	assert.Equal(t, "Just a body, nothing attached to this one.", msg.Body)
}

func TestSMTPOnlyClientRejectsRetrieval(t *testing.T) {
	acct := testSender()
	acct.Protocol = config.ProtocolSMTP
	client, err := New(acct, zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, client.Connect(ctx))

	var ue *UnsupportedError
	_, err = client.FetchMessages(ctx, Filter{})
	require.ErrorAs(t, err, &ue)

	_, err = client.SearchMessages(ctx, SearchRequest{Keywords: "x", PageSize: 1})
	require.ErrorAs(t, err, &ue)

	assert.NoError(t, client.Disconnect())
}

func TestNewRejectsUnknownProtocol(t *testing.T) {
	acct := testSender()
	acct.Protocol = "carrier-pigeon"
	_, err := New(acct, zap.NewNop())
	assert.Error(t, err)
}

func TestAllRecipients(t *testing.T) {
	req := model.SendRequest{
		To:  []string{"a@example.com"},
		CC:  []string{"b@example.com"},
		BCC: []string{"c@example.com"},
	}
	assert.Equal(t,
		[]string{"a@example.com", "b@example.com", "c@example.com"},
		req.AllRecipients())
}

package mailclient

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func crlf(s string) string {
	return strings.ReplaceAll(s, "\n", "\r\n")
}

const plainMessage = `From: Alice <alice@example.com>
To: Bob <bob@example.com>, carol@example.com
Cc: dave@example.com
Subject: Quarterly report
Date: Mon, 02 Jan 2006 15:04:05 -0700
MIME-Version: 1.0
Content-Type: text/plain; charset=utf-8

This is the body of the quarterly report message.
`

func TestDecodeMessagePlain(t *testing.T) {
	msg, err := DecodeMessage("42", strings.NewReader(crlf(plainMessage)))
	require.NoError(t, err)

	assert.Equal(t, "42", msg.UID)
	assert.Equal(t, "Alice <alice@example.com>", msg.Sender)
	assert.Equal(t, []string{"Bob <bob@example.com>", "carol@example.com"}, msg.Recipients)
	assert.Equal(t, []string{"dave@example.com"}, msg.CC)
	assert.Equal(t, "Quarterly report", msg.Subject)
	assert.Equal(t, "This is the body of the quarterly report message.", msg.Body)
	assert.Empty(t, msg.Attachments)
}

func TestDecodeMessageDateNormalized(t *testing.T) {
	msg, err := DecodeMessage("1", strings.NewReader(crlf(plainMessage)))
	require.NoError(t, err)

	_, offset := msg.Date.Zone()
	assert.Equal(t, 8*60*60, offset)

	want := time.Date(2006, 1, 2, 15, 4, 5, 0, time.FixedZone("", -7*60*60))
	assert.True(t, msg.Date.Equal(want))
}

func TestDecodeMessageEncodedSubject(t *testing.T) {
	raw := crlf(`From: a@example.com
To: b@example.com
Subject: =?UTF-8?B?44GT44KT44Gr44Gh44Gv?=
Content-Type: text/plain; charset=utf-8

Greetings from the encoded subject message body.
`)
	msg, err := DecodeMessage("1", strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "こんにちは", msg.Subject)
}

func TestDecodeMessageAttachment(t *testing.T) {
	raw := crlf(`From: a@example.com
To: b@example.com
Subject: With attachment
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary=frontier

--frontier
Content-Type: text/plain; charset=utf-8

Please find the attached data file below.
--frontier
Content-Type: application/octet-stream
Content-Disposition: attachment; filename="data.bin"
Content-Transfer-Encoding: base64

aGVsbG8gd29ybGQ=
--frontier--
`)
	msg, err := DecodeMessage("7", strings.NewReader(raw))
	require.NoError(t, err)

	require.Len(t, msg.Attachments, 1)
	att := msg.Attachments[0]
	assert.Equal(t, "data.bin", att.Filename)
	assert.Equal(t, "application/octet-stream", att.ContentType)
	assert.Equal(t, []byte("hello world"), att.Data)
	assert.Equal(t, int64(11), att.Size)
}

func TestDecodeMessageRendersHTML(t *testing.T) {
	raw := crlf(`From: a@example.com
To: b@example.com
Subject: HTML only
MIME-Version: 1.0
Content-Type: multipart/alternative; boundary=alt

--alt
Content-Type: text/plain; charset=utf-8

hi
--alt
Content-Type: text/html; charset=utf-8

<html><body><h1>Welcome</h1><p>This is the <b>real</b> content.</p></body></html>
--alt--
`)
	msg, err := DecodeMessage("3", strings.NewReader(raw))
	require.NoError(t, err)

	assert.Contains(t, msg.Body, "Welcome")
	assert.Contains(t, msg.Body, "real")
	assert.NotContains(t, msg.Body, "<h1>")
}

// When both parts carry substance, the rendered HTML wins: it is the richer
// alternative and often the only one with the full content.
func TestDecodeMessageHTMLPreferredOverPlain(t *testing.T) {
	raw := crlf(`From: a@example.com
To: b@example.com
Subject: Both bodies
MIME-Version: 1.0
Content-Type: multipart/alternative; boundary=alt

--alt
Content-Type: text/plain; charset=utf-8

Short plain rendering without the table contents.
--alt
Content-Type: text/html; charset=utf-8

<html><body><h2>Quarterly numbers</h2><table><tr><td>Revenue</td><td>1200</td></tr></table></body></html>
--alt--
`)
	msg, err := DecodeMessage("4", strings.NewReader(raw))
	require.NoError(t, err)

	assert.Contains(t, msg.Body, "Quarterly numbers")
	assert.Contains(t, msg.Body, "Revenue")
	assert.NotContains(t, msg.Body, "Short plain rendering")
}

// An HTML part that renders to almost nothing falls back to the plain part.
func TestDecodeMessageEmptyHTMLFallsBackToPlain(t *testing.T) {
	raw := crlf(`From: a@example.com
To: b@example.com
Subject: Hollow html
MIME-Version: 1.0
Content-Type: multipart/alternative; boundary=alt

--alt
Content-Type: text/plain; charset=utf-8

The plain text body carries the actual message content.
--alt
Content-Type: text/html; charset=utf-8

<html><body><div>&nbsp;</div></body></html>
--alt--
`)
	msg, err := DecodeMessage("5", strings.NewReader(raw))
	require.NoError(t, err)

	assert.Equal(t, "The plain text body carries the actual message content.", msg.Body)
}

func TestDecodeMessageGarbage(t *testing.T) {
	_, err := DecodeMessage("9", strings.NewReader("not a mail message at all"))
	assert.Error(t, err)
}

package mimefile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshsymonds/inboxledger/internal/gmail"
	"github.com/joshsymonds/inboxledger/internal/processor"
)

const alertEML = "From: HDFC Bank <alerts@hdfcbank.net>\r\n" +
	"To: me@example.com\r\n" +
	"Subject: =?UTF-8?Q?UPI_txn_alert?=\r\n" +
	"Date: Sun, 12 May 2024 09:30:00 +0000\r\n" +
	"Message-Id: <abc123@hdfcbank.net>\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/alternative; boundary=\"XYZ\"\r\n" +
	"\r\n" +
	"--XYZ\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Rs.450.00 sent to VPA shop@okaxis SHOP on 12-05-24\r\n" +
	"--XYZ\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"Content-Transfer-Encoding: quoted-printable\r\n" +
	"\r\n" +
	"<p class=3D\"td\">Rs.450.00 sent to VPA shop@okaxis SHOP on 12-05-24</p>\r\n" +
	"--XYZ--\r\n"

func TestLoad(t *testing.T) {
	msg, err := Load(strings.NewReader(alertEML), "")
	require.NoError(t, err)

	assert.Equal(t, gmail.MessageID("abc123@hdfcbank.net"), msg.ID)
	assert.Equal(t, "UPI txn alert", msg.Header("Subject"))
	assert.Equal(t, "HDFC Bank <alerts@hdfcbank.net>", msg.Header("From"))
	assert.Equal(t, time.Date(2024, 5, 12, 9, 30, 0, 0, time.UTC).UnixMilli(), msg.InternalDate)
	assert.Contains(t, msg.Snippet, "Rs.450.00")

	part := gmail.FindPart(&msg.Payload, "text/html")
	require.NotNil(t, part)
	body, err := gmail.DecodeText(part.Body.Data)
	require.NoError(t, err)
	assert.Contains(t, body, `<p class="td">`)
}

func TestLoadFeedsProcessors(t *testing.T) {
	msg, err := Load(strings.NewReader(alertEML), "m1")
	require.NoError(t, err)
	assert.Equal(t, gmail.MessageID("m1"), msg.ID)

	p := processor.NewRegex(nil, processor.BankFields(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	res := p.Process(context.Background(), msg)
	require.Equal(t, processor.StatusOK, res.Status)
	assert.Equal(t, "450.00", res.Content.Fields.Value("amount"))
	assert.Equal(t, "SHOP", res.Content.Fields.Value("payee"))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alert-42.eml")
	require.NoError(t, os.WriteFile(path, []byte(alertEML), 0o600))

	msg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, gmail.MessageID("alert-42"), msg.ID)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.eml"))
	assert.Error(t, err)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("io failure") }

func TestLoadReadError(t *testing.T) {
	_, err := Load(failingReader{}, "x")
	assert.True(t, errors.Is(err, gmail.ErrProcessing))
}

func TestSnippetKeepsRunesWhole(t *testing.T) {
	got := snippet("a" + strings.Repeat("é", 150))
	assert.True(t, utf8.ValidString(got))
	assert.Len(t, got, snippetLen-1)

	assert.Equal(t, "short text", snippet("  short \n text "))
}

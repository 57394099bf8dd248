package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleEML = "From: Incorvix Website <contact@incorvix.nl>\r\n" +
	"To: contact@incorvix.nl\r\n" +
	"Reply-To: jane@example.com\r\n" +
	"Subject: New Job Application from Jane Doe - Position: Frontend Developer\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"b1\"\r\n" +
	"\r\n" +
	"--b1\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Name: Jane Doe\r\n" +
	"--b1\r\n" +
	"Content-Type: application/pdf\r\n" +
	"Content-Disposition: attachment; filename=\"resume.pdf\"\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"JVBERi0xLjQK\r\n" +
	"--b1--\r\n"

func TestInspectCommand(t *testing.T) {
	t.Run("汇总 .eml 文件", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "sample.eml")
		require.NoError(t, os.WriteFile(path, []byte(sampleEML), 0o600))

		cmd := newRootCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"inspect", path})
		require.NoError(t, cmd.Execute())

		var got inspection
		require.NoError(t, json.Unmarshal(out.Bytes(), &got))
		assert.Equal(t, "New Job Application from Jane Doe - Position: Frontend Developer", got.Subject)
		assert.Equal(t, "jane@example.com", got.ReplyTo)
		assert.Equal(t, []string{"contact@incorvix.nl"}, got.To)
		require.Len(t, got.Attachments, 1)
		assert.Equal(t, "resume.pdf", got.Attachments[0].Filename)
		assert.Equal(t, "application/pdf", got.Attachments[0].ContentType)
		assert.Equal(t, len("%PDF-1.4\n"), got.Attachments[0].Size)
		assert.Positive(t, got.TextLength)
	})

	t.Run("缺少参数", func(t *testing.T) {
		cmd := newRootCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"inspect"})
		assert.Error(t, cmd.Execute())
	})

	t.Run("文件不存在", func(t *testing.T) {
		cmd := newRootCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"inspect", filepath.Join(t.TempDir(), "missing.eml")})
		err := cmd.Execute()
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "missing.eml"))
	})
}

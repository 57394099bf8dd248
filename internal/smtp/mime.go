package smtp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
)

func init() {
	message.CharsetReader = charsetReader
}

// ParsedAttachment 解析出的附件
type ParsedAttachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// ParsedEmail 表示解析后的邮件内容
type ParsedEmail struct {
	Subject     string
	From        string
	To          []string
	ReplyTo     string
	Headers     map[string]string
	Text        string
	HTML        string
	Attachments []ParsedAttachment
}

// ParseEmail 解析邮件，提取文本、HTML 和附件
func ParseEmail(raw []byte) (*ParsedEmail, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("parse mail: %w", err)
	}
	defer mr.Close()

	parsed := &ParsedEmail{Headers: make(map[string]string)}
	parsed.Subject, _ = mr.Header.Subject()
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		parsed.From = from[0].Address
	}
	if rcpts, err := mr.Header.AddressList("To"); err == nil {
		for _, a := range rcpts {
			parsed.To = append(parsed.To, a.Address)
		}
	}
	if replyTo, err := mr.Header.AddressList("Reply-To"); err == nil && len(replyTo) > 0 {
		parsed.ReplyTo = replyTo[0].Address
	}
	fields := mr.Header.Fields()
	for fields.Next() {
		if _, seen := parsed.Headers[fields.Key()]; !seen {
			parsed.Headers[fields.Key()] = fields.Value()
		}
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return nil, fmt.Errorf("parse part: %w", err)
		}

		body, err := io.ReadAll(part.Body)
		if err != nil {
			return nil, fmt.Errorf("read part: %w", err)
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			switch {
			case contentType == "text/html" && parsed.HTML == "":
				parsed.HTML = string(body)
			case (contentType == "text/plain" || contentType == "") && parsed.Text == "":
				parsed.Text = string(body)
			}
		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			if filename == "" {
				filename = "unnamed"
			}
			contentType, _, _ := h.ContentType()
			parsed.Attachments = append(parsed.Attachments, ParsedAttachment{
				Filename:    filename,
				ContentType: contentType,
				Content:     body,
			})
		}
	}
	return parsed, nil
}

// charsetReader 把常见的非 UTF-8 字符集转换为 UTF-8
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc := charsetEncoding(strings.ToLower(strings.TrimSpace(charset)))
	if enc == nil {
		return nil, fmt.Errorf("unhandled charset %q", charset)
	}
	return enc.NewDecoder().Reader(input), nil
}

// charsetEncoding 根据字符集名称返回编码
func charsetEncoding(charset string) encoding.Encoding {
	switch charset {
	case "iso-8859-1", "latin1":
		return charmap.ISO8859_1
	case "iso-8859-15":
		return charmap.ISO8859_15
	case "windows-1252", "cp1252":
		return charmap.Windows1252
	case "gb2312", "gbk", "gb18030":
		return simplifiedchinese.GBK
	case "big5":
		return traditionalchinese.Big5
	case "shift_jis":
		return japanese.ShiftJIS
	case "euc-jp":
		return japanese.EUCJP
	case "iso-2022-jp":
		return japanese.ISO2022JP
	case "euc-kr", "ks_c_5601-1987":
		return korean.EUCKR
	default:
		return nil
	}
}

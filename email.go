package main

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"gopkg.in/gomail.v2"
)

// EmailSender mails the finished article to the author's own inbox as a
// backup copy, with the markdown file attached and the body rendered to HTML
// for quick reading on a phone.
type EmailSender struct {
	host     string
	port     int
	address  string
	password string
	theme    string
}

func NewEmailSender(settings *Settings, secrets *Secrets) *EmailSender {
	return &EmailSender{
		host:     settings.Email.SMTPHost,
		port:     settings.Email.SMTPPort,
		address:  secrets.EmailAddress,
		password: secrets.EmailPassword,
		theme:    secrets.theme(settings),
	}
}

// SendArticle mails the article to the configured address (self-addressed).
func (e *EmailSender) SendArticle(article *Article, attachmentPath string) error {
	html, err := renderArticleEmail(article, e.theme)
	if err != nil {
		return &DeliveryError{Channel: "email", Err: err}
	}

	m := gomail.NewMessage()
	m.SetHeader("From", e.address)
	m.SetHeader("To", e.address)
	m.SetHeader("Subject", fmt.Sprintf("【記事完成】%s", article.Title))
	m.SetBody("text/html", html)
	m.Attach(attachmentPath)

	dialer := gomail.NewDialer(e.host, e.port, e.address, e.password)
	if err := dialer.DialAndSend(m); err != nil {
		return &DeliveryError{Channel: "email", Err: err}
	}
	return nil
}

// renderArticleEmail builds the HTML body: a short header with the metadata,
// then the article body converted from markdown.
func renderArticleEmail(article *Article, theme string) (string, error) {
	bodyHTML, err := renderMarkdown(article.Body)
	if err != nil {
		return "", fmt.Errorf("rendering article body: %w", err)
	}

	var b bytes.Buffer
	b.WriteString("<html><body>")
	fmt.Fprintf(&b, "<h1>%s</h1>", article.Title)
	fmt.Fprintf(&b, "<p><b>テーマ:</b> %s<br>", theme)
	fmt.Fprintf(&b, "<b>読了時間:</b> %s<br>", article.EstimatedReadTime)
	fmt.Fprintf(&b, "<b>ハッシュタグ:</b> %s</p>", hashtagLine(article.Hashtags))
	fmt.Fprintf(&b, "<p><b>要約:</b> %s</p>", article.Summary)
	b.WriteString("<hr>")
	b.WriteString(bodyHTML)
	b.WriteString("<hr><p>添付のMarkdownファイルをNoteにコピー&ペーストしてください。</p>")
	b.WriteString("</body></html>")
	return b.String(), nil
}

// renderMarkdown converts CommonMark text to HTML.
func renderMarkdown(source string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(source), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

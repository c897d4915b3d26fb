package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	deliveryTimeout = 30 * time.Second
	rateLimitWait   = 10 * time.Second
)

// Discord embed colors, kept from the notification conventions the channel
// readers are used to.
const (
	colorBlue   = 3447003
	colorGreen  = 3066993
	colorBright = 5763719
	colorPurple = 10181046
	colorOrange = 15105570
	colorGold   = 15844367
	colorYellow = 16776960
	colorRed    = 15158332
)

// Embed is one rich card of a notification message.
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
}

type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type EmbedFooter struct {
	Text string `json:"text"`
}

// Notifier delivers messages to the human in the loop. Jobs depend on this
// interface; delivery is always best-effort from their point of view.
type Notifier interface {
	Send(content string, embeds []Embed) error
	SendFile(content string, embeds []Embed, path string) error
}

// DiscordNotifier posts to a webhook. A missing webhook URL degrades to
// printing the message instead of failing: notifications are advisory.
type DiscordNotifier struct {
	webhookURL string
	client     *http.Client
	wait       func(time.Duration)
}

func NewDiscordNotifier(webhookURL string) *DiscordNotifier {
	if webhookURL == "" {
		logWarn("DISCORD_WEBHOOK_URL is not set; notifications will be printed instead")
	}
	return &DiscordNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: deliveryTimeout},
		wait:       time.Sleep,
	}
}

func (n *DiscordNotifier) Send(content string, embeds []Embed) error {
	if n.webhookURL == "" {
		n.printFallback(content, embeds)
		return nil
	}

	payload := map[string]interface{}{}
	if content != "" {
		payload["content"] = content
	}
	if len(embeds) > 0 {
		payload["embeds"] = embeds
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return &DeliveryError{Channel: "discord", Err: err}
	}
	return n.execute(body, "application/json")
}

// SendFile delivers the message with a file attachment via a multipart
// webhook request.
func (n *DiscordNotifier) SendFile(content string, embeds []Embed, path string) error {
	if n.webhookURL == "" {
		n.printFallback(content, embeds)
		return nil
	}

	fileData, err := os.ReadFile(path)
	if err != nil {
		return &DeliveryError{Channel: "discord", Err: fmt.Errorf("reading attachment: %w", err)}
	}

	payload := map[string]interface{}{}
	if content != "" {
		payload["content"] = content
	}
	if len(embeds) > 0 {
		payload["embeds"] = embeds
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return &DeliveryError{Channel: "discord", Err: err}
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("payload_json", string(payloadJSON)); err != nil {
		return &DeliveryError{Channel: "discord", Err: err}
	}
	part, err := writer.CreateFormFile("files[0]", filepath.Base(path))
	if err != nil {
		return &DeliveryError{Channel: "discord", Err: err}
	}
	if _, err := part.Write(fileData); err != nil {
		return &DeliveryError{Channel: "discord", Err: err}
	}
	if err := writer.Close(); err != nil {
		return &DeliveryError{Channel: "discord", Err: err}
	}

	return n.execute(buf.Bytes(), writer.FormDataContentType())
}

// execute posts the prepared body. A rate-limit response gets a single
// fixed wait-and-retry before giving up; any other non-2xx fails fast.
func (n *DiscordNotifier) execute(body []byte, contentType string) error {
	for attempt := 0; ; attempt++ {
		resp, err := n.client.Post(n.webhookURL, contentType, bytes.NewReader(body))
		if err != nil {
			return &DeliveryError{Channel: "discord", Err: err}
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent:
			return nil
		case resp.StatusCode == http.StatusTooManyRequests && attempt == 0:
			logWarn("discord rate limited, waiting %s before one retry", rateLimitWait)
			n.wait(rateLimitWait)
		default:
			return &DeliveryError{Channel: "discord", Err: fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)}
		}
	}
}

func (n *DiscordNotifier) printFallback(content string, embeds []Embed) {
	log.Print("📧 [notification]")
	if content != "" {
		log.Print(content)
	}
	for _, embed := range embeds {
		log.Printf("  %s %s", embed.Title, embed.Description)
	}
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// ideasEmbeds builds the daily idea-proposal message: a header explaining
// how to pick via the gist, one colored card per idea, and a closing prompt.
func ideasEmbeds(ideas []Idea, dateStr, gistURL string) []Embed {
	ideaColors := []int{colorGold, colorOrange, colorGreen}

	embeds := []Embed{{
		Title:       fmt.Sprintf("🤖 %sの記事アイデア", dateStr),
		Description: "今日投稿する記事を選んでください！\n下のリンクをクリックして、選択番号（1、2、3）を入力してください。",
		Color:       colorBlue,
		Timestamp:   timestamp(),
		Fields: []EmbedField{{
			Name: "📝 選択方法",
			Value: fmt.Sprintf("1. [このリンクをクリック](%s)\n"+
				"2. 右上の「Edit」をクリック\n"+
				"3. `\"selection\": null` を `\"selection\": 1` に変更（1、2、3のいずれか）\n"+
				"4. 「Update secret gist」をクリック", gistURL),
		}},
		Footer: &EmbedFooter{Text: "AI記事自動生成システム"},
	}}

	for i, idea := range ideas {
		embeds = append(embeds, Embed{
			Title: fmt.Sprintf("%d. %s", i+1, idea.Title),
			Color: ideaColors[i%len(ideaColors)],
			Fields: []EmbedField{
				{Name: "📁 カテゴリ", Value: idea.Category, Inline: true},
				{Name: "📝 目標文字数", Value: fmt.Sprintf("%d文字", idea.TargetWordCount), Inline: true},
				{Name: "⏱️ 読了時間", Value: idea.EstimatedReadTime, Inline: true},
				{Name: "💡 今このテーマが重要な理由", Value: idea.WhyNow},
				{Name: "📌 主なポイント", Value: bulletList(idea.KeyPoints)},
			},
		})
	}

	embeds = append(embeds, Embed{
		Title:       "👉 どの記事を書きますか？",
		Description: "Gistを編集して選択番号を入力してください",
		Color:       colorBright,
	})
	return embeds
}

// articleReadyEmbeds builds the completion message attached to the artifact.
func articleReadyEmbeds(article *Article, filename string) []Embed {
	return []Embed{
		{
			Title:       "✅ 記事が完成しました！",
			Description: fmt.Sprintf("**%s**", article.Title),
			Color:       colorGreen,
			Timestamp:   timestamp(),
			Fields: []EmbedField{
				{Name: "📊 文字数", Value: fmt.Sprintf("約%d文字", len([]rune(article.Body))), Inline: true},
				{Name: "⏱️ 読了時間", Value: article.EstimatedReadTime, Inline: true},
				{Name: "🏷️ ハッシュタグ", Value: hashtagLine(article.Hashtags)},
				{Name: "📝 要約", Value: article.Summary},
			},
			Footer: &EmbedFooter{Text: "ファイル: " + filename},
		},
		{
			Title: "📄 次のステップ",
			Description: "1️⃣ 記事ファイルをダウンロード\n" +
				"2️⃣ Noteの編集画面を開く\n" +
				"3️⃣ コピー&ペースト\n" +
				"4️⃣ 公開ボタンをクリック\n\n" +
				"⏰ **所要時間: 約3分**",
			Color: colorGold,
		},
	}
}

// awaitingSelectionEmbeds reminds the human that no idea was picked yet.
func awaitingSelectionEmbeds() []Embed {
	return []Embed{{
		Title:       "⚠️ 記事が選択されていません",
		Description: "Gistで選択番号（1、2、3）を入力してください。\n次回の実行時に記事を生成します。",
		Color:       colorYellow,
		Timestamp:   timestamp(),
	}}
}

// failureEmbeds names the stage a job died at and the underlying cause.
func failureEmbeds(job string, stage Stage, err error) []Embed {
	return []Embed{{
		Title:       fmt.Sprintf("❌ %sが失敗しました", job),
		Description: fmt.Sprintf("ステージ: `%s`\n原因: %v", stage, err),
		Color:       colorRed,
		Timestamp:   timestamp(),
	}}
}

// weeklyReportEmbeds renders the Sunday performance summary.
func weeklyReportEmbeds(metrics *WeeklyMetrics) []Embed {
	topArticles := make([]string, 0, len(metrics.TopArticles))
	for i, article := range metrics.TopArticles {
		topArticles = append(topArticles, fmt.Sprintf("%d. **%s** (%s PV)", i+1, article.Title, groupDigits(article.Views)))
	}
	topArticlesText := strings.Join(topArticles, "\n")
	if topArticlesText == "" {
		topArticlesText = "データ収集中..."
	}

	suggestion := metrics.NextWeekSuggestion
	if suggestion == "" {
		suggestion = "引き続き頑張りましょう！"
	}

	return []Embed{
		{
			Title:       "📊 週次レポート",
			Description: "今週のパフォーマンスサマリー",
			Color:       colorPurple,
			Timestamp:   timestamp(),
			Fields: []EmbedField{
				{Name: "📝 投稿記事数", Value: fmt.Sprintf("**%d本**", metrics.ArticlesPosted), Inline: true},
				{Name: "👁️ 総PV", Value: fmt.Sprintf("**%s**", groupDigits(metrics.TotalViews)), Inline: true},
				{Name: "👥 新規フォロワー", Value: fmt.Sprintf("**%d人**", metrics.NewFollowers), Inline: true},
				{Name: "💰 収益", Value: fmt.Sprintf("**¥%s**", groupDigits(metrics.Revenue)), Inline: true},
				{Name: "🏆 人気記事TOP3", Value: topArticlesText},
			},
			Footer: &EmbedFooter{Text: "AI記事自動生成システム 週次レポート"},
		},
		{
			Title:       "💡 来週の提案",
			Description: suggestion,
			Color:       colorBlue,
		},
	}
}

func bulletList(points []string) string {
	if len(points) == 0 {
		return "なし"
	}
	lines := make([]string, len(points))
	for i, point := range points {
		lines[i] = "• " + point
	}
	return strings.Join(lines, "\n")
}

func hashtagLine(tags []string) string {
	if len(tags) == 0 {
		return "なし"
	}
	prefixed := make([]string, len(tags))
	for i, tag := range tags {
		prefixed[i] = "#" + tag
	}
	return strings.Join(prefixed, " ")
}

// groupDigits renders n with thousands separators, e.g. 4250 -> "4,250".
func groupDigits(n int) string {
	s := fmt.Sprintf("%d", n)
	negative := strings.HasPrefix(s, "-")
	if negative {
		s = s[1:]
	}
	var b strings.Builder
	for i, digit := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(digit)
	}
	if negative {
		return "-" + b.String()
	}
	return b.String()
}

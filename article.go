package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ArticleOutcome distinguishes the two successful endings of the article job.
type ArticleOutcome string

const (
	// OutcomeDone means an article was generated, persisted and delivered.
	OutcomeDone ArticleOutcome = "done"
	// OutcomeAwaitingSelection means the human has not picked an idea yet.
	// The job ends quietly with no side effects beyond a reminder.
	OutcomeAwaitingSelection ArticleOutcome = "awaiting_selection"
)

// ArticleGenerationJob is the evening half of the daily loop: read the
// human's selection, write the full article, persist it locally, record it
// in the history, and deliver it over every configured channel.
type ArticleGenerationJob struct {
	provider TextGenerator
	store    *ArticleStore
	notifier Notifier
	email    *EmailSender   // nil when email is not configured
	drive    *DriveUploader // nil when Drive is not configured
	settings *Settings
	strategy string
	now      time.Time
}

func NewArticleGenerationJob(provider TextGenerator, store *ArticleStore, notifier Notifier, email *EmailSender, drive *DriveUploader, settings *Settings, strategy string, now time.Time) *ArticleGenerationJob {
	return &ArticleGenerationJob{
		provider: provider,
		store:    store,
		notifier: notifier,
		email:    email,
		drive:    drive,
		settings: settings,
		strategy: strategy,
		now:      now,
	}
}

func (j *ArticleGenerationJob) Run(ctx context.Context) (ArticleOutcome, error) {
	banner("記事生成ジョブ")

	logStep("loading selection record")
	record, err := j.store.LoadSelection(ctx)
	if err != nil {
		return "", j.fail(StageLoadingSelection, err)
	}
	if record == nil {
		return "", j.fail(StageLoadingSelection, errors.New("no selection record found; run the ideas job first"))
	}

	if record.Selection == nil {
		logWarn("no idea selected yet; sending reminder")
		if err := j.notifier.Send("", awaitingSelectionEmbeds()); err != nil {
			logWarn("reminder notification failed: %v", err)
		}
		return OutcomeAwaitingSelection, nil
	}

	k := *record.Selection
	if k < 1 || k > len(record.Ideas) {
		return "", j.fail(StageValidating, &ConfigurationError{
			Reason: fmt.Sprintf("selection %d is out of range 1..%d", k, len(record.Ideas)),
		})
	}
	idea := record.Ideas[k-1]
	logOK("selected idea %d: %s (%s)", k, idea.Title, idea.Category)

	prompt := buildArticlePrompt(idea, j.strategy)
	debugLog("article prompt:\n%s", prompt)

	logStep("generating article")
	raw, err := j.provider.Generate(ctx, prompt, j.settings.Provider.ArticleMaxTokens)
	if err != nil {
		return "", j.fail(StageGenerating, err)
	}

	article, err := parseArticle(raw)
	if err != nil {
		preserveRawResponse(j.settings.OutputDirectory, "article", j.now, raw)
		return "", j.fail(StageParsing, err)
	}
	logOK("article generated: %s (%d文字)", article.Title, len([]rune(article.Body)))

	logStep("saving article artifact")
	artifactPath, err := j.saveArticle(article)
	if err != nil {
		return "", j.fail(StagePersisting, err)
	}
	logOK("artifact saved: %s", artifactPath)

	logStep("appending history")
	entry := HistoryEntry{
		Date:     j.now.Format("2006-01-02"),
		Title:    article.Title,
		Category: idea.Category,
	}
	total, err := j.store.AppendHistory(ctx, entry)
	if err != nil {
		return "", j.fail(StageAppendingHistory, err)
	}
	logOK("history appended: %d entries total", total)

	j.deliver(ctx, article, artifactPath)

	logOK("article generation complete")
	return OutcomeDone, nil
}

// deliver pushes the artifact over every configured channel. Each channel is
// independent and best-effort: one failure never blocks the others, and none
// of them fails the job.
func (j *ArticleGenerationJob) deliver(ctx context.Context, article *Article, artifactPath string) {
	logStep("delivering article")

	if err := j.notifier.SendFile("", articleReadyEmbeds(article, filepath.Base(artifactPath)), artifactPath); err != nil {
		logWarn("discord delivery failed: %v", err)
	} else {
		logOK("discord delivery sent")
	}

	if j.email != nil {
		if err := j.email.SendArticle(article, artifactPath); err != nil {
			logWarn("email delivery failed: %v", err)
		} else {
			logOK("email delivery sent")
		}
	}

	if j.drive != nil {
		link, err := j.drive.Upload(ctx, artifactPath, article.Title, j.now)
		if err != nil {
			logWarn("drive upload failed: %v", err)
		} else {
			logOK("drive upload done: %s", link)
		}
	}
}

// saveArticle writes the markdown artifact and its JSON sidecar. The sidecar
// round-trips every article field for later tooling; the markdown is the
// copy-paste-ready rendition.
func (j *ArticleGenerationJob) saveArticle(article *Article) (string, error) {
	if err := os.MkdirAll(j.settings.OutputDirectory, 0755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	path := filepath.Join(j.settings.OutputDirectory, j.now.Format("20060102")+"_article.md")
	if err := os.WriteFile(path, []byte(renderArticleMarkdown(article)), 0644); err != nil {
		return "", fmt.Errorf("writing artifact: %w", err)
	}

	meta, err := json.MarshalIndent(article, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding sidecar: %w", err)
	}
	if err := os.WriteFile(sidecarPath(path), meta, 0644); err != nil {
		return "", fmt.Errorf("writing sidecar: %w", err)
	}
	return path, nil
}

func sidecarPath(artifactPath string) string {
	return strings.TrimSuffix(artifactPath, ".md") + "_meta.json"
}

// renderArticleMarkdown produces the publish-ready markdown: title heading,
// body verbatim, then a footer with hashtags, read time and summary.
func renderArticleMarkdown(article *Article) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", article.Title)
	b.WriteString(article.Body)
	b.WriteString("\n\n---\n\n")
	fmt.Fprintf(&b, "**ハッシュタグ**: %s\n\n", hashtagLine(article.Hashtags))
	fmt.Fprintf(&b, "**読了時間**: %s\n\n", article.EstimatedReadTime)
	fmt.Fprintf(&b, "**要約**: %s\n", article.Summary)
	return b.String()
}

func (j *ArticleGenerationJob) fail(stage Stage, err error) error {
	logFail("article generation failed at %s: %v", stage, err)
	if nerr := j.notifier.Send("", failureEmbeds("記事生成", stage, err)); nerr != nil {
		logWarn("failure notification also failed: %v", nerr)
	}
	return &StageError{Stage: stage, Err: err}
}

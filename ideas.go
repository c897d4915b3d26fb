package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// IdeaProposalJob is the morning half of the daily loop: propose three
// article ideas grounded in the content strategy, persist them for the human
// to pick from, and notify.
type IdeaProposalJob struct {
	provider TextGenerator
	store    *ArticleStore
	notifier Notifier
	settings *Settings
	strategy string
	now      time.Time
}

func NewIdeaProposalJob(provider TextGenerator, store *ArticleStore, notifier Notifier, settings *Settings, strategy string, now time.Time) *IdeaProposalJob {
	return &IdeaProposalJob{
		provider: provider,
		store:    store,
		notifier: notifier,
		settings: settings,
		strategy: strategy,
		now:      now,
	}
}

func (j *IdeaProposalJob) Run(ctx context.Context) error {
	banner("アイデア提案ジョブ")

	logStep("loading article history")
	history, err := j.store.LoadHistory(ctx)
	if err != nil {
		return j.fail(StageLoadingHistory, err)
	}
	logOK("history loaded: %d entries", len(history))

	recent := recentHistory(history, j.settings.Store.HistoryLimit)
	prompt := buildIdeasPrompt(j.now, j.strategy, recent)
	debugLog("ideas prompt:\n%s", prompt)

	logStep("generating %d article ideas", ideasPerDay)
	raw, err := j.provider.Generate(ctx, prompt, j.settings.Provider.IdeasMaxTokens)
	if err != nil {
		return j.fail(StageGenerating, err)
	}

	ideas, err := parseIdeas(raw)
	if err != nil {
		preserveRawResponse(j.settings.OutputDirectory, "ideas", j.now, raw)
		return j.fail(StageParsing, err)
	}
	logOK("ideas generated")
	for i, idea := range ideas {
		logOK("  %d. %s (%s)", i+1, idea.Title, idea.Category)
	}

	dateStr := j.now.Format("2006-01-02")
	record := SelectionRecord{
		Date:      dateStr,
		Ideas:     ideas,
		Selection: nil,
	}

	logStep("persisting selection record")
	gistURL, err := j.store.SaveProposal(ctx, record, history)
	if err != nil {
		return j.fail(StagePersisting, err)
	}
	logOK("selection record saved: %s", gistURL)

	logStep("sending idea notification")
	if err := j.notifier.Send("", ideasEmbeds(ideas, formatJaDate(j.now), gistURL)); err != nil {
		logWarn("idea notification failed: %v", err)
	} else {
		logOK("notification sent")
	}

	logOK("idea proposal complete; awaiting human selection")
	return nil
}

// fail reports the terminal failure, attempting a best-effort alert first.
func (j *IdeaProposalJob) fail(stage Stage, err error) error {
	logFail("idea proposal failed at %s: %v", stage, err)
	if nerr := j.notifier.Send("", failureEmbeds("アイデア提案", stage, err)); nerr != nil {
		logWarn("failure notification also failed: %v", nerr)
	}
	return &StageError{Stage: stage, Err: err}
}

// preserveRawResponse writes an unparsable model response to a diagnostics
// file so the output is not lost with the failure.
func preserveRawResponse(outputDir, op string, now time.Time, raw string) {
	dir := filepath.Join(outputDir, "diagnostics")
	if err := os.MkdirAll(dir, 0755); err != nil {
		logWarn("cannot create diagnostics directory: %v", err)
		return
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s_raw.txt", now.Format("20060102_150405"), op))
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		logWarn("cannot preserve raw response: %v", err)
		return
	}
	logWarn("raw response preserved at %s", path)
}

// stageOf returns the stage a terminal job error failed at.
func stageOf(err error) (Stage, bool) {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage, true
	}
	return "", false
}

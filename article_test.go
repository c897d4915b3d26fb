package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validArticleResponse = "```json\n" + `{
  "title": "ChatGPT入門ガイド",
  "body": "## はじめに\n\nChatGPTの使い方を解説します。",
  "hashtags": ["AI", "ChatGPT", "初心者"],
  "summary": "ChatGPTの基本操作を初心者向けに解説",
  "estimated_read_time": "5分"
}` + "\n```"

func selectionBlob(selection *int) string {
	record := SelectionRecord{
		Date: "2026-08-23",
		Ideas: []Idea{
			{ID: 1, Title: "ChatGPT入門", Category: "基礎知識シリーズ"},
			{ID: 2, Title: "プロンプトのコツ", Category: "実践チュートリアル"},
			{ID: 3, Title: "AIニュース", Category: "最新ニュース解説"},
		},
		Selection: selection,
	}
	data, _ := json.Marshal(record)
	return string(data)
}

func intPtr(n int) *int { return &n }

func newArticleJob(t *testing.T, gen TextGenerator, docs *memoryStore, notifier *recordingNotifier) *ArticleGenerationJob {
	t.Helper()
	settings := testSettings()
	settings.OutputDirectory = t.TempDir()
	store := NewArticleStore(docs, settings)
	return NewArticleGenerationJob(gen, store, notifier, nil, nil, settings, "戦略ドキュメント", testNow)
}

func TestArticleGenerationHappyPath(t *testing.T) {
	gen := &fakeGenerator{response: validArticleResponse}
	docs := newMemoryStore()
	docs.id = "g1"
	docs.blobs["article_selection.json"] = selectionBlob(intPtr(2))
	docs.blobs["article_history.json"] = "[]"
	notifier := &recordingNotifier{}
	job := newArticleJob(t, gen, docs, notifier)

	outcome, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeDone {
		t.Fatalf("outcome = %s", outcome)
	}

	// The picked idea, not the first one, drives the prompt.
	if !strings.Contains(gen.prompts[0], "プロンプトのコツ") {
		t.Error("prompt not built from the selected idea")
	}

	artifact := filepath.Join(job.settings.OutputDirectory, "20260823_article.md")
	content, err := os.ReadFile(artifact)
	if err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
	text := string(content)
	if !strings.HasPrefix(text, "# ChatGPT入門ガイド\n\n") {
		t.Errorf("artifact header wrong:\n%s", text)
	}
	if !strings.Contains(text, "**ハッシュタグ**: #AI #ChatGPT #初心者") {
		t.Errorf("artifact footer wrong:\n%s", text)
	}

	var meta Article
	sidecar, err := os.ReadFile(sidecarPath(artifact))
	if err != nil {
		t.Fatalf("sidecar missing: %v", err)
	}
	if err := json.Unmarshal(sidecar, &meta); err != nil {
		t.Fatalf("sidecar not valid JSON: %v", err)
	}
	if meta.Title != "ChatGPT入門ガイド" || meta.Summary == "" {
		t.Errorf("sidecar = %+v", meta)
	}
	if meta.Body != "## はじめに\n\nChatGPTの使い方を解説します。" {
		t.Errorf("sidecar body not byte-identical: %q", meta.Body)
	}

	var history []HistoryEntry
	if err := json.Unmarshal([]byte(docs.blobs["article_history.json"]), &history); err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 {
		t.Fatalf("history entries = %d, want exactly 1", len(history))
	}
	if history[0].Category != "実践チュートリアル" {
		t.Errorf("history category = %q, want the idea's category", history[0].Category)
	}
	if history[0].Date != "2026-08-23" {
		t.Errorf("history date = %q", history[0].Date)
	}

	if len(notifier.files) != 1 || filepath.Base(notifier.files[0]) != "20260823_article.md" {
		t.Errorf("delivered files = %v", notifier.files)
	}
}

func TestArticleGenerationAwaitingSelection(t *testing.T) {
	gen := &fakeGenerator{response: validArticleResponse}
	docs := newMemoryStore()
	docs.id = "g1"
	docs.blobs["article_selection.json"] = selectionBlob(nil)
	notifier := &recordingNotifier{}
	job := newArticleJob(t, gen, docs, notifier)

	outcome, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeAwaitingSelection {
		t.Fatalf("outcome = %s", outcome)
	}

	// Quiescent ending: a reminder only, no generation, no writes.
	if len(gen.prompts) != 0 {
		t.Error("generation attempted without a selection")
	}
	if docs.writes != 0 {
		t.Error("store written without a selection")
	}
	if len(notifier.sends) != 1 {
		t.Fatalf("sends = %d, want reminder only", len(notifier.sends))
	}
}

func TestArticleGenerationNoRecord(t *testing.T) {
	gen := &fakeGenerator{response: validArticleResponse}
	notifier := &recordingNotifier{}
	job := newArticleJob(t, gen, newMemoryStore(), notifier)

	_, err := job.Run(context.Background())
	if stage, ok := stageOf(err); !ok || stage != StageLoadingSelection {
		t.Fatalf("stage = %v, err = %v", stage, err)
	}
}

func TestArticleGenerationSelectionOutOfRange(t *testing.T) {
	for _, selection := range []int{0, 4, -1} {
		gen := &fakeGenerator{response: validArticleResponse}
		docs := newMemoryStore()
		docs.id = "g1"
		docs.blobs["article_selection.json"] = selectionBlob(intPtr(selection))
		notifier := &recordingNotifier{}
		job := newArticleJob(t, gen, docs, notifier)

		_, err := job.Run(context.Background())
		if stage, ok := stageOf(err); !ok || stage != StageValidating {
			t.Fatalf("selection %d: stage = %v, err = %v", selection, stage, err)
		}
		var confErr *ConfigurationError
		if !errors.As(err, &confErr) {
			t.Errorf("selection %d: expected ConfigurationError, got %v", selection, err)
		}
		if len(gen.prompts) != 0 {
			t.Errorf("selection %d: generation attempted", selection)
		}
	}
}

func TestArticleGenerationParseFailureSkipsHistory(t *testing.T) {
	gen := &fakeGenerator{response: "本文になっていない返答"}
	docs := newMemoryStore()
	docs.id = "g1"
	docs.blobs["article_selection.json"] = selectionBlob(intPtr(1))
	docs.blobs["article_history.json"] = "[]"
	notifier := &recordingNotifier{}
	job := newArticleJob(t, gen, docs, notifier)

	_, err := job.Run(context.Background())
	if stage, ok := stageOf(err); !ok || stage != StageParsing {
		t.Fatalf("stage = %v, err = %v", stage, err)
	}
	if docs.blobs["article_history.json"] != "[]" {
		t.Error("history touched despite parse failure")
	}

	matches, globErr := globDiagnostics(job.settings.OutputDirectory)
	if globErr != nil {
		t.Fatal(globErr)
	}
	if len(matches) != 1 {
		t.Fatalf("diagnostics files = %d, want 1", len(matches))
	}
}

func TestArticleGenerationDeliveryFailureIsNotFatal(t *testing.T) {
	gen := &fakeGenerator{response: validArticleResponse}
	docs := newMemoryStore()
	docs.id = "g1"
	docs.blobs["article_selection.json"] = selectionBlob(intPtr(1))
	docs.blobs["article_history.json"] = "[]"
	notifier := &recordingNotifier{err: errors.New("webhook down")}
	job := newArticleJob(t, gen, docs, notifier)

	outcome, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("delivery failure must not fail the job: %v", err)
	}
	if outcome != OutcomeDone {
		t.Fatalf("outcome = %s", outcome)
	}

	// History must already be recorded even though delivery failed.
	var history []HistoryEntry
	if err := json.Unmarshal([]byte(docs.blobs["article_history.json"]), &history); err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 {
		t.Errorf("history entries = %d", len(history))
	}
}

func TestRenderArticleMarkdown(t *testing.T) {
	article := &Article{
		Title:             "タイトル",
		Body:              "## 見出し\n\n本文。",
		Hashtags:          []string{"AI", "Note"},
		Summary:           "要約文",
		EstimatedReadTime: "4分",
	}

	got := renderArticleMarkdown(article)
	want := "# タイトル\n\n## 見出し\n\n本文。\n\n---\n\n**ハッシュタグ**: #AI #Note\n\n**読了時間**: 4分\n\n**要約**: 要約文\n"
	if got != want {
		t.Errorf("markdown mismatch:\ngot  %q\nwant %q", got, want)
	}
}

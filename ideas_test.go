package main

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// fakeGenerator returns a canned response and records every prompt it saw.
type fakeGenerator struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

// recordingNotifier captures notifications instead of delivering them.
type recordingNotifier struct {
	sends []sentMessage
	files []string
	err   error
}

type sentMessage struct {
	content string
	embeds  []Embed
}

func (r *recordingNotifier) Send(content string, embeds []Embed) error {
	r.sends = append(r.sends, sentMessage{content, embeds})
	return r.err
}

func (r *recordingNotifier) SendFile(content string, embeds []Embed, path string) error {
	r.sends = append(r.sends, sentMessage{content, embeds})
	r.files = append(r.files, path)
	return r.err
}

var testNow = time.Date(2026, 8, 23, 7, 0, 0, 0, time.UTC)

func globDiagnostics(outputDir string) ([]string, error) {
	return filepath.Glob(filepath.Join(outputDir, "diagnostics", "*_raw.txt"))
}

func newIdeasJob(t *testing.T, gen TextGenerator, docs *memoryStore, notifier *recordingNotifier) *IdeaProposalJob {
	t.Helper()
	settings := testSettings()
	settings.OutputDirectory = t.TempDir()
	store := NewArticleStore(docs, settings)
	return NewIdeaProposalJob(gen, store, notifier, settings, "戦略ドキュメント", testNow)
}

func TestIdeaProposalHappyPath(t *testing.T) {
	gen := &fakeGenerator{response: validIdeasResponse}
	docs := newMemoryStore()
	notifier := &recordingNotifier{}

	if err := newIdeasJob(t, gen, docs, notifier).Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var record SelectionRecord
	if err := json.Unmarshal([]byte(docs.blobs["article_selection.json"]), &record); err != nil {
		t.Fatalf("selection blob: %v", err)
	}
	if record.Date != "2026-08-23" {
		t.Errorf("date = %q", record.Date)
	}
	if len(record.Ideas) != ideasPerDay {
		t.Errorf("ideas = %d", len(record.Ideas))
	}
	if record.Selection != nil {
		t.Error("selection must be null after proposal")
	}
	if len(notifier.sends) != 1 {
		t.Fatalf("sends = %d, want 1", len(notifier.sends))
	}
	// Header card, one per idea, closing prompt.
	if got := len(notifier.sends[0].embeds); got != ideasPerDay+2 {
		t.Errorf("embeds = %d, want %d", got, ideasPerDay+2)
	}
}

func TestIdeaProposalEmbedsHistoryInPrompt(t *testing.T) {
	gen := &fakeGenerator{response: validIdeasResponse}
	docs := newMemoryStore()
	docs.id = "g1"
	docs.blobs["article_history.json"] = `[{"date": "2026-08-22", "title": "昨日のChatGPT記事", "category": "基礎知識シリーズ"}]`
	notifier := &recordingNotifier{}

	if err := newIdeasJob(t, gen, docs, notifier).Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(gen.prompts) != 1 {
		t.Fatalf("prompts = %d", len(gen.prompts))
	}
	if !strings.Contains(gen.prompts[0], "昨日のChatGPT記事") {
		t.Error("prompt does not carry past titles as negative examples")
	}
}

// Re-running the proposal must overwrite the day's selection and leave the
// history exactly as it was: proposals never touch the dedup record.
func TestIdeaProposalRerunPreservesHistory(t *testing.T) {
	history := `[{"date": "2026-08-20", "title": "古い記事", "category": "基礎知識シリーズ"}]`
	gen := &fakeGenerator{response: validIdeasResponse}
	docs := newMemoryStore()
	docs.id = "g1"
	docs.blobs["article_history.json"] = history
	notifier := &recordingNotifier{}
	job := newIdeasJob(t, gen, docs, notifier)

	for i := 0; i < 2; i++ {
		if err := job.Run(context.Background()); err != nil {
			t.Fatalf("run %d: %v", i+1, err)
		}
	}

	var saved []HistoryEntry
	if err := json.Unmarshal([]byte(docs.blobs["article_history.json"]), &saved); err != nil {
		t.Fatal(err)
	}
	if len(saved) != 1 || saved[0].Title != "古い記事" {
		t.Errorf("history changed across reruns: %v", saved)
	}
}

func TestIdeaProposalStoreOutageFails(t *testing.T) {
	gen := &fakeGenerator{response: validIdeasResponse}
	docs := newMemoryStore()
	docs.failFind = &StoreError{Op: "listing containers", Err: errors.New("boom")}
	notifier := &recordingNotifier{}

	err := newIdeasJob(t, gen, docs, notifier).Run(context.Background())
	if stage, ok := stageOf(err); !ok || stage != StageLoadingHistory {
		t.Fatalf("stage = %v, err = %v", stage, err)
	}
	if len(gen.prompts) != 0 {
		t.Error("generation attempted despite unreadable history")
	}
}

func TestIdeaProposalParseFailurePreservesRaw(t *testing.T) {
	gen := &fakeGenerator{response: "全く構造化されていない返答"}
	docs := newMemoryStore()
	notifier := &recordingNotifier{}
	job := newIdeasJob(t, gen, docs, notifier)

	err := job.Run(context.Background())
	if stage, ok := stageOf(err); !ok || stage != StageParsing {
		t.Fatalf("stage = %v, err = %v", stage, err)
	}
	if docs.writes != 0 {
		t.Error("store written despite parse failure")
	}

	matches, globErr := globDiagnostics(job.settings.OutputDirectory)
	if globErr != nil {
		t.Fatal(globErr)
	}
	if len(matches) != 1 {
		t.Fatalf("diagnostics files = %d, want 1", len(matches))
	}
}

func TestIdeaProposalNotificationFailureIsNotFatal(t *testing.T) {
	gen := &fakeGenerator{response: validIdeasResponse}
	docs := newMemoryStore()
	notifier := &recordingNotifier{err: errors.New("webhook down")}

	if err := newIdeasJob(t, gen, docs, notifier).Run(context.Background()); err != nil {
		t.Fatalf("notification failure must not fail the job: %v", err)
	}
	if docs.writes == 0 {
		t.Error("proposal not persisted")
	}
}

func TestIdeaProposalGenerationFailureNotifies(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("provider down")}
	docs := newMemoryStore()
	notifier := &recordingNotifier{}

	err := newIdeasJob(t, gen, docs, notifier).Run(context.Background())
	if stage, ok := stageOf(err); !ok || stage != StageGenerating {
		t.Fatalf("stage = %v, err = %v", stage, err)
	}
	if len(notifier.sends) != 1 {
		t.Fatalf("failure alert not sent")
	}
	if !strings.Contains(notifier.sends[0].embeds[0].Title, "失敗") {
		t.Errorf("alert title = %q", notifier.sends[0].embeds[0].Title)
	}
}

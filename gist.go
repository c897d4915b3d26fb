package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"
	"golang.org/x/oauth2"
)

const storeTimeout = 30 * time.Second

// DocumentStore is the contract over the external key/blob store used as a
// cross-process handoff between jobs. An absent container or blob is a valid
// empty state (found=false); a genuine connectivity or auth failure is a
// StoreError.
type DocumentStore interface {
	FindContainer(ctx context.Context, markerPrefix string) (id string, found bool, err error)
	ReadNamedBlob(ctx context.Context, id, name string) (content string, found bool, err error)
	// WriteNamedBlobs patches only the named blobs; other blobs in the same
	// container are untouched. An empty description leaves it unchanged.
	WriteNamedBlobs(ctx context.Context, id, description string, blobs map[string]string) (url string, err error)
	CreateContainer(ctx context.Context, description string, blobs map[string]string) (id, url string, err error)
}

// GistStore implements DocumentStore over private GitHub gists: one gist is
// the container, its description carries the marker, its files are the
// named blobs.
type GistStore struct {
	client *github.Client
}

func NewGistStore(token string) *GistStore {
	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(context.Background(), source)
	httpClient.Timeout = storeTimeout
	return &GistStore{client: github.NewClient(httpClient)}
}

// FindContainer returns the first gist whose description starts with the
// marker prefix. The API gives no uniqueness or ordering guarantee, so when
// several gists match, first-in-enumeration-order wins.
func (g *GistStore) FindContainer(ctx context.Context, markerPrefix string) (string, bool, error) {
	gists, _, err := g.client.Gists.List(ctx, "", nil)
	if err != nil {
		return "", false, &StoreError{Op: "listing containers", Err: err}
	}
	for _, gist := range gists {
		if strings.HasPrefix(gist.GetDescription(), markerPrefix) {
			return gist.GetID(), true, nil
		}
	}
	return "", false, nil
}

func (g *GistStore) ReadNamedBlob(ctx context.Context, id, name string) (string, bool, error) {
	gist, _, err := g.client.Gists.Get(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return "", false, nil
		}
		return "", false, &StoreError{Op: fmt.Sprintf("reading container %s", id), Err: err}
	}
	file, ok := gist.Files[github.GistFilename(name)]
	if !ok {
		return "", false, nil
	}
	return file.GetContent(), true, nil
}

func (g *GistStore) WriteNamedBlobs(ctx context.Context, id, description string, blobs map[string]string) (string, error) {
	gist := &github.Gist{Files: gistFiles(blobs)}
	if description != "" {
		gist.Description = github.String(description)
	}
	updated, _, err := g.client.Gists.Edit(ctx, id, gist)
	if err != nil {
		return "", &StoreError{Op: fmt.Sprintf("updating container %s", id), Err: err}
	}
	return updated.GetHTMLURL(), nil
}

func (g *GistStore) CreateContainer(ctx context.Context, description string, blobs map[string]string) (string, string, error) {
	created, _, err := g.client.Gists.Create(ctx, &github.Gist{
		Description: github.String(description),
		Public:      github.Bool(false),
		Files:       gistFiles(blobs),
	})
	if err != nil {
		return "", "", &StoreError{Op: "creating container", Err: err}
	}
	return created.GetID(), created.GetHTMLURL(), nil
}

func gistFiles(blobs map[string]string) map[github.GistFilename]github.GistFile {
	files := make(map[github.GistFilename]github.GistFile, len(blobs))
	for name, content := range blobs {
		files[github.GistFilename(name)] = github.GistFile{Content: github.String(content)}
	}
	return files
}

func isNotFound(err error) bool {
	var ghErr *github.ErrorResponse
	return errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound
}

// ArticleStore manages the two named blobs of the pipeline's container: the
// current day's selection record and the append-only history list.
type ArticleStore struct {
	docs          DocumentStore
	marker        string
	selectionFile string
	historyFile   string
}

func NewArticleStore(docs DocumentStore, settings *Settings) *ArticleStore {
	return &ArticleStore{
		docs:          docs,
		marker:        settings.Store.Marker,
		selectionFile: settings.Store.SelectionFile,
		historyFile:   settings.Store.HistoryFile,
	}
}

func (s *ArticleStore) description(date string) string {
	return s.marker + " - " + date
}

// LoadHistory reads the full history list. An absent container or blob is
// "no history yet"; a store outage surfaces as an error so it can never be
// mistaken for an empty history, which would defeat the dedup guarantee.
func (s *ArticleStore) LoadHistory(ctx context.Context) ([]HistoryEntry, error) {
	id, found, err := s.docs.FindContainer(ctx, s.marker)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	content, found, err := s.docs.ReadNamedBlob(ctx, id, s.historyFile)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	var entries []HistoryEntry
	if err := json.Unmarshal([]byte(content), &entries); err != nil {
		return nil, &StoreError{Op: "decoding " + s.historyFile, Err: err}
	}
	return entries, nil
}

// LoadSelection reads the current selection record, or nil when no container
// or blob exists yet.
func (s *ArticleStore) LoadSelection(ctx context.Context) (*SelectionRecord, error) {
	id, found, err := s.docs.FindContainer(ctx, s.marker)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	content, found, err := s.docs.ReadNamedBlob(ctx, id, s.selectionFile)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	var record SelectionRecord
	if err := json.Unmarshal([]byte(content), &record); err != nil {
		return nil, &StoreError{Op: "decoding " + s.selectionFile, Err: err}
	}
	return &record, nil
}

// SaveProposal writes the day's selection record and carries the history
// blob forward unchanged in the same update, so both blobs stay together in
// one container. Returns the container's human-editable URL.
func (s *ArticleStore) SaveProposal(ctx context.Context, record SelectionRecord, history []HistoryEntry) (string, error) {
	if history == nil {
		history = []HistoryEntry{}
	}
	selectionJSON, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding selection record: %w", err)
	}
	historyJSON, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding history: %w", err)
	}
	blobs := map[string]string{
		s.selectionFile: string(selectionJSON),
		s.historyFile:   string(historyJSON),
	}

	id, found, err := s.docs.FindContainer(ctx, s.marker)
	if err != nil {
		return "", err
	}
	if !found {
		_, url, err := s.docs.CreateContainer(ctx, s.description(record.Date), blobs)
		return url, err
	}
	return s.docs.WriteNamedBlobs(ctx, id, s.description(record.Date), blobs)
}

// AppendHistory appends exactly one entry to the history blob. Only the
// history blob is patched; the selection blob is untouched. Returns the new
// history length.
func (s *ArticleStore) AppendHistory(ctx context.Context, entry HistoryEntry) (int, error) {
	id, found, err := s.docs.FindContainer(ctx, s.marker)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, &StoreError{Op: "appending history", Err: errors.New("container not found")}
	}

	var entries []HistoryEntry
	content, found, err := s.docs.ReadNamedBlob(ctx, id, s.historyFile)
	if err != nil {
		return 0, err
	}
	if found {
		if err := json.Unmarshal([]byte(content), &entries); err != nil {
			return 0, &StoreError{Op: "decoding " + s.historyFile, Err: err}
		}
	}

	entries = append(entries, entry)
	historyJSON, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("encoding history: %w", err)
	}
	if _, err := s.docs.WriteNamedBlobs(ctx, id, "", map[string]string{s.historyFile: string(historyJSON)}); err != nil {
		return 0, err
	}
	return len(entries), nil
}

// recentHistory returns the most recent limit entries (history is appended
// chronologically) to bound the prompt size.
func recentHistory(entries []HistoryEntry, limit int) []HistoryEntry {
	if limit <= 0 || len(entries) <= limit {
		return entries
	}
	return entries[len(entries)-limit:]
}

package main

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const maxDriveNameRunes = 100

var unsafeFilenameChars = regexp.MustCompile(`[<>:"/\\|?*]`)

// DriveUploader archives finished articles to Google Drive under a fixed
// three-level folder tree: <root>/<theme>/<YYYY年M月>.
type DriveUploader struct {
	service    *drive.Service
	rootFolder string
	theme      string
}

// NewDriveUploader authenticates with a service-account credentials JSON
// blob. Only drive.file scope is requested: the uploader can touch nothing
// it did not create.
func NewDriveUploader(ctx context.Context, credentialsJSON, rootFolder, theme string) (*DriveUploader, error) {
	service, err := drive.NewService(ctx,
		option.WithCredentialsJSON([]byte(credentialsJSON)),
		option.WithScopes(drive.DriveFileScope),
	)
	if err != nil {
		return nil, fmt.Errorf("creating drive service: %w", err)
	}
	return &DriveUploader{
		service:    service,
		rootFolder: rootFolder,
		theme:      theme,
	}, nil
}

// Upload stores the article file under the dated folder and returns its
// shareable link.
func (d *DriveUploader) Upload(ctx context.Context, path, title string, now time.Time) (string, error) {
	folderID, err := d.ensureFolderPath(ctx, now)
	if err != nil {
		return "", &DeliveryError{Channel: "drive", Err: err}
	}

	f, err := os.Open(path)
	if err != nil {
		return "", &DeliveryError{Channel: "drive", Err: fmt.Errorf("opening artifact: %w", err)}
	}
	defer f.Close()

	name := now.Format("20060102") + "_" + sanitizeFilename(title) + ".md"
	created, err := d.service.Files.Create(&drive.File{
		Name:    name,
		Parents: []string{folderID},
	}).Media(f, googleapi.ContentType("text/markdown")).Fields("id", "webViewLink", "name").Context(ctx).Do()
	if err != nil {
		return "", &DeliveryError{Channel: "drive", Err: fmt.Errorf("uploading %s: %w", name, err)}
	}
	return created.WebViewLink, nil
}

// ensureFolderPath walks root/theme/month, creating each level on demand.
func (d *DriveUploader) ensureFolderPath(ctx context.Context, now time.Time) (string, error) {
	rootID, err := d.findOrCreateFolder(ctx, d.rootFolder, "")
	if err != nil {
		return "", err
	}
	themeID, err := d.findOrCreateFolder(ctx, d.theme, rootID)
	if err != nil {
		return "", err
	}
	month := fmt.Sprintf("%d年%d月", now.Year(), int(now.Month()))
	return d.findOrCreateFolder(ctx, month, themeID)
}

func (d *DriveUploader) findOrCreateFolder(ctx context.Context, name, parentID string) (string, error) {
	parent := parentID
	if parent == "" {
		parent = "root"
	}
	query := fmt.Sprintf(
		"name = '%s' and mimeType = 'application/vnd.google-apps.folder' and '%s' in parents and trashed = false",
		name, parent)

	list, err := d.service.Files.List().Q(query).Fields("files(id, name)").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("searching folder %q: %w", name, err)
	}
	if len(list.Files) > 0 {
		return list.Files[0].Id, nil
	}

	folder := &drive.File{
		Name:     name,
		MimeType: "application/vnd.google-apps.folder",
	}
	if parentID != "" {
		folder.Parents = []string{parentID}
	}
	created, err := d.service.Files.Create(folder).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("creating folder %q: %w", name, err)
	}
	debugLog("created drive folder %q (%s)", name, created.Id)
	return created.Id, nil
}

// sanitizeFilename strips characters that are unsafe in file names and caps
// the length in runes so multibyte titles are not cut mid-character.
func sanitizeFilename(title string) string {
	cleaned := unsafeFilenameChars.ReplaceAllString(title, "")
	runes := []rune(cleaned)
	if len(runes) > maxDriveNameRunes {
		runes = runes[:maxDriveNameRunes]
	}
	return string(runes)
}

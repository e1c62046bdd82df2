// package formatter provides functions to export resolved playlists to various formats (JSON, CSV, Markdown, plain text)
package formatter

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/desertthunder/pulsemix/internal/models"
	"github.com/desertthunder/pulsemix/internal/tasks"
)

// Format names an export format.
type Format string

const (
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "txt"
)

// ParseFormat accepts the format names used by the CLI. "md" and "text" are aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "txt", "text":
		return FormatText, nil
	}
	return "", fmt.Errorf("unknown format %q (json, csv, markdown, txt)", s)
}

// Ext is the file extension written for f.
func (f Format) Ext() string {
	switch f {
	case FormatMarkdown:
		return ".md"
	case FormatText:
		return ".txt"
	}
	return "." + string(f)
}

// Export writes result to w in format.
func Export(w io.Writer, result *tasks.PlaylistResult, format Format) error {
	if result == nil {
		return fmt.Errorf("no playlist to export")
	}

	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case FormatCSV:
		return writeCSV(w, result)
	case FormatMarkdown:
		return writeMarkdown(w, result, "")
	case FormatText:
		return writeText(w, result)
	}
	return fmt.Errorf("unknown format %q", format)
}

// ExportToCSV converts a PlaylistResult to CSV format with columns: ID, Name, Artists, URI, Preview URL, External URL
func ExportToCSV(result *tasks.PlaylistResult) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCSV(&buf, result); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCSV(w io.Writer, result *tasks.PlaylistResult) error {
	writer := csv.NewWriter(w)

	headers := []string{"ID", "Name", "Artists", "URI", "Preview URL", "External URL"}
	if err := writer.Write(headers); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, track := range result.Tracks {
		record := []string{
			track.ID,
			track.Name,
			strings.Join(track.ArtistNames, "; "),
			track.CanonicalURI,
			track.PreviewURL,
			track.ExternalURL,
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("CSV writer error: %w", err)
	}
	return nil
}

// ExportToMarkdown converts a PlaylistResult to Markdown format with optional cover image
func ExportToMarkdown(result *tasks.PlaylistResult, imageFilename string) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeMarkdown(&buf, result, imageFilename); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeMarkdown(w io.Writer, result *tasks.PlaylistResult, imageFilename string) error {
	ew := &errWriter{w: w}

	ew.printf("# %s\n\n", heading(result))
	if imageFilename != "" {
		ew.printf("![Cover](%s)\n\n", imageFilename)
	}
	if result.Mood != nil && result.Mood.Summary != "" {
		ew.printf("**Summary**: %s\n\n", result.Mood.Summary)
	}

	ew.printf("**Tracks**: %d\n", len(result.Tracks))
	ew.printf("**Source**: %s\n", sourceLine(result))
	if result.Mood != nil {
		ew.printf("**Score**: %.2f\n", result.Mood.Score)
	}
	ew.printf("\n")

	if result.Mood != nil && len(result.Mood.Recommendations) > 0 {
		ew.printf("## Recommendations\n\n")
		for _, rec := range result.Mood.Recommendations {
			ew.printf("- %s\n", rec)
		}
		ew.printf("\n")
	}

	ew.printf("## Tracks\n\n")
	for i, track := range result.Tracks {
		title := track.Name
		if track.ExternalURL != "" {
			title = fmt.Sprintf("[%s](%s)", track.Name, track.ExternalURL)
		}
		ew.printf("%d. %s - %s\n", i+1, artists(track), title)
	}
	return ew.err
}

// ExportToText converts a PlaylistResult to plain text format
func ExportToText(result *tasks.PlaylistResult) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeText(&buf, result); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeText(w io.Writer, result *tasks.PlaylistResult) error {
	ew := &errWriter{w: w}

	ew.printf("Playlist: %s\n", heading(result))
	if result.Mood != nil && result.Mood.Summary != "" {
		ew.printf("Summary: %s\n", result.Mood.Summary)
	}
	ew.printf("Source: %s\n", sourceLine(result))
	ew.printf("Tracks: %d\n\n", len(result.Tracks))

	for i, track := range result.Tracks {
		ew.printf("%d. %s - %s\n", i+1, artists(track), track.Name)
	}
	return ew.err
}

// imageTimeout bounds a cover download, body included, whatever client is passed in.
var imageTimeout = 30 * time.Second

// DownloadImage downloads an image from the given URL and returns the raw bytes
func DownloadImage(client *http.Client, url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("empty URL provided")
	}
	if client == nil {
		client = http.DefaultClient
	}

	ctx, cancel := context.WithTimeout(context.Background(), imageTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create image request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: status %d", resp.StatusCode)
	}

	imageData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	return imageData, nil
}

// MarkdownExportResult contains information about files created by WriteMarkdownExport
type MarkdownExportResult struct {
	Directory  string
	Files      []string
	CoverImage string
}

// WriteMarkdownExport exports a playlist to Markdown format in a dedicated directory.
//
// Directory name defaults to pulsemix-{label}.
// When client is non-nil the album art of the first track that has one is saved as the cover.
// Creates a directory structure: {dir}/README.md and optionally {dir}/cover.jpg
func WriteMarkdownExport(result *tasks.PlaylistResult, outputDir string, client *http.Client) (*MarkdownExportResult, error) {
	if result == nil {
		return nil, fmt.Errorf("no playlist to export")
	}
	if outputDir == "" {
		outputDir = "pulsemix-" + string(result.Label())
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	export := &MarkdownExportResult{Directory: outputDir, Files: []string{}}

	var coverImageFilename string
	if art := coverArt(result); art != "" && client != nil {
		imageData, err := DownloadImage(client, art)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to download cover image: %v\n", err)
		} else {
			coverImageFilename = "cover.jpg"
			coverImagePath := filepath.Join(outputDir, coverImageFilename)
			if err := os.WriteFile(coverImagePath, imageData, 0644); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to save cover image: %v\n", err)
				coverImageFilename = ""
			} else {
				export.CoverImage = coverImagePath
				export.Files = append(export.Files, coverImagePath)
			}
		}
	}

	mdData, err := ExportToMarkdown(result, coverImageFilename)
	if err != nil {
		return nil, fmt.Errorf("failed to generate Markdown: %w", err)
	}

	mdFile := filepath.Join(outputDir, "README.md")
	if err := os.WriteFile(mdFile, mdData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write Markdown file: %w", err)
	}
	export.Files = append(export.Files, mdFile)

	return export, nil
}

// WriteExport writes result in format to path and returns the path written.
//
// Defaults to pulsemix-{label}{ext} as the filename. Markdown goes through [WriteMarkdownExport]
// and path names the directory.
func WriteExport(result *tasks.PlaylistResult, format Format, path string, client *http.Client) ([]string, error) {
	if result == nil {
		return nil, fmt.Errorf("no playlist to export")
	}
	if format == FormatMarkdown {
		md, err := WriteMarkdownExport(result, path, client)
		if err != nil {
			return nil, err
		}
		return md.Files, nil
	}

	if path == "" {
		path = "pulsemix-" + string(result.Label()) + format.Ext()
	}

	var buf bytes.Buffer
	if err := Export(&buf, result, format); err != nil {
		return nil, fmt.Errorf("failed to generate %s: %w", format, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return nil, fmt.Errorf("failed to write %s file: %w", format, err)
	}
	return []string{path}, nil
}

func heading(result *tasks.PlaylistResult) string {
	label := result.Label()
	if len(label) == 0 {
		return "pulsemix"
	}
	return "pulsemix: " + strings.ToUpper(string(label[:1])) + string(label[1:])
}

func sourceLine(result *tasks.PlaylistResult) string {
	switch {
	case result.Query != "":
		return fmt.Sprintf("%s (%q)", result.Source, result.Query)
	case result.Reason != "":
		return fmt.Sprintf("%s (%s)", result.Source, result.Reason)
	}
	return result.Source
}

func artists(track models.TrackResult) string {
	if len(track.ArtistNames) == 0 {
		return "Unknown Artist"
	}
	return strings.Join(track.ArtistNames, ", ")
}

func coverArt(result *tasks.PlaylistResult) string {
	for _, track := range result.Tracks {
		if track.AlbumArtURL != "" {
			return track.AlbumArtURL
		}
	}
	return ""
}

// errWriter stops writing after the first failure.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}

// package formatter renders sync plans and summaries for the CLI and
// exports playlist data to various formats (CSV, Markdown, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/desertthunder/syncta/internal/models"
	librarysync "github.com/desertthunder/syncta/internal/sync"
)

// PlanToText renders a plan as a numbered change list for preview.
func PlanToText(plan *librarysync.Plan) []byte {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Playlist: %s\n", plan.PlaylistName))
	buf.WriteString(fmt.Sprintf("Platform: %s", plan.Binding.Platform))
	if plan.RemoteName != "" {
		buf.WriteString(fmt.Sprintf(" (%s)", plan.RemoteName))
	}
	buf.WriteString(fmt.Sprintf("\nMode: %s\n\n", plan.Binding.Mode))

	if plan.Empty() {
		buf.WriteString("Nothing to sync: both sides already agree.\n")
		return buf.Bytes()
	}

	for i, change := range plan.Changes {
		marker := " "
		if change.Selected {
			marker = "x"
		}
		buf.WriteString(fmt.Sprintf("%3d. [%s] %-20s %s\n", i+1, marker, directionKind(change), change.Description))
		if change.NeedsConfirmation {
			buf.WriteString(fmt.Sprintf("        needs confirmation (%.0f%% confidence)\n", change.Confidence*100))
		}
	}

	selected := len(plan.Selected())
	buf.WriteString(fmt.Sprintf("\n%d of %d changes selected\n", selected, len(plan.Changes)))
	return buf.Bytes()
}

// SummaryToText renders an applied summary with per-change outcomes for
// anything that did not succeed.
func SummaryToText(summary *librarysync.Summary) []byte {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Applied: %d\nSkipped: %d\nFailed: %d\n", summary.Applied, summary.Skipped, summary.Failed))

	for _, detail := range summary.Details {
		if detail.State == librarysync.StateSucceeded {
			continue
		}
		buf.WriteString(fmt.Sprintf("  %-9s %s", detail.State, detail.Change.Description))
		if detail.Reason != "" {
			buf.WriteString(fmt.Sprintf(" (%s)", detail.Reason))
		}
		buf.WriteString("\n")
	}
	return buf.Bytes()
}

func directionKind(change librarysync.Change) string {
	return fmt.Sprintf("%s %s", change.Direction, change.Kind)
}

// ExportToCSV converts a playlist's tracks to CSV with columns:
// ID, Title, Artist, Album, Duration, Year
func ExportToCSV(tracks []*models.Track) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Title", "Artist", "Album", "Duration", "Year"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, track := range tracks {
		record := []string{
			strconv.FormatInt(track.ID, 10),
			track.Title,
			track.PrimaryArtist,
			track.Album,
			strconv.Itoa(track.DurationMS),
			strconv.Itoa(track.Year),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts a playlist to Markdown format.
func ExportToMarkdown(playlist *models.Playlist, tracks []*models.Track) []byte {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("# %s\n\n", playlist.Name))
	buf.WriteString(fmt.Sprintf("**Tracks**: %d\n\n", len(tracks)))

	buf.WriteString("## Tracks\n\n")
	for i, track := range tracks {
		albumPart := ""
		if track.Album != "" {
			albumPart = fmt.Sprintf(" (%s)", track.Album)
		}
		buf.WriteString(fmt.Sprintf("%d. %s - %s%s [%s]\n", i+1, track.PrimaryArtist, track.Title, albumPart, formatDuration(track.DurationMS)))
	}

	return buf.Bytes()
}

// ExportToText converts a playlist to plain text format.
func ExportToText(playlist *models.Playlist, tracks []*models.Track) []byte {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Playlist: %s\n", playlist.Name))
	buf.WriteString(fmt.Sprintf("Tracks: %d\n\n", len(tracks)))

	for i, track := range tracks {
		buf.WriteString(fmt.Sprintf("%d. %s - %s\n", i+1, track.PrimaryArtist, track.Title))
	}

	return buf.Bytes()
}

// WriteCSVExport exports a playlist to a CSV file.
//
// Defaults to {playlist.ID}_tracks.csv as the filename.
func WriteCSVExport(playlist *models.Playlist, tracks []*models.Track, filepath string) (string, error) {
	if filepath == "" {
		filepath = fmt.Sprintf("%d_tracks.csv", playlist.ID)
	}

	csvData, err := ExportToCSV(tracks)
	if err != nil {
		return "", fmt.Errorf("failed to generate CSV: %w", err)
	}

	if err := os.WriteFile(filepath, csvData, 0644); err != nil {
		return "", fmt.Errorf("failed to write CSV file: %w", err)
	}

	return filepath, nil
}

// WriteMarkdownExport exports a playlist to a Markdown file.
//
// Defaults to {playlist.ID}_tracks.md as the filename.
func WriteMarkdownExport(playlist *models.Playlist, tracks []*models.Track, filepath string) (string, error) {
	if filepath == "" {
		filepath = fmt.Sprintf("%d_tracks.md", playlist.ID)
	}

	if err := os.WriteFile(filepath, ExportToMarkdown(playlist, tracks), 0644); err != nil {
		return "", fmt.Errorf("failed to write Markdown file: %w", err)
	}

	return filepath, nil
}

// WriteTextExport exports a playlist to a plain text file.
//
// Defaults to {playlist.ID}_tracks.txt as the filename.
func WriteTextExport(playlist *models.Playlist, tracks []*models.Track, filepath string) (string, error) {
	if filepath == "" {
		filepath = fmt.Sprintf("%d_tracks.txt", playlist.ID)
	}

	if err := os.WriteFile(filepath, ExportToText(playlist, tracks), 0644); err != nil {
		return "", fmt.Errorf("failed to write text file: %w", err)
	}

	return filepath, nil
}

func formatDuration(ms int) string {
	seconds := ms / 1000
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

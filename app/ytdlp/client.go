package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/bthode/engawa/app/metadata"
)

const (
	DefaultPath           = "yt-dlp"
	DefaultFormat         = "best"
	DefaultOutputTemplate = "%(title)s [%(id)s].%(ext)s"
)

// runFunc executes the binary and returns its captured stdout and stderr.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, []byte, error)

// Client drives a yt-dlp executable for metadata extraction and downloads
type Client struct {
	Path           string
	Format         string
	OutputTemplate string
	ExtraArgs      []string

	run runFunc
}

var _ metadata.Extractor = (*Client)(nil)

func NewClient(path, format string) *Client {
	if path == "" {
		path = DefaultPath
	}
	if format == "" {
		format = DefaultFormat
	}
	return &Client{
		Path:           path,
		Format:         format,
		OutputTemplate: DefaultOutputTemplate,
		run:            execRun,
	}
}

func execRun(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Extract fetches metadata for a single video without downloading it
func (c *Client) Extract(ctx context.Context, link string) (*metadata.VideoMetadata, error) {
	args := []string{"-J", "--no-warnings", "--skip-download", "--no-playlist"}
	args = append(args, c.ExtraArgs...)
	args = append(args, link)

	stdout, stderr, err := c.run(ctx, c.Path, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, metadata.NewError(errorMessage(stderr, err))
	}

	info, err := parseInfo(stdout)
	if err != nil {
		return nil, err
	}
	return info.toMetadata(), nil
}

// DownloadError describes a failed download of one link
type DownloadError struct {
	Link    string
	Message string
	Err     error
}

func (e *DownloadError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("download %s: %s", e.Link, e.Message)
	}
	return fmt.Sprintf("download %s: %v", e.Link, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// Download saves the video into destination and returns the final file path
func (c *Client) Download(ctx context.Context, link, destination string) (string, error) {
	template := c.OutputTemplate
	if template == "" {
		template = DefaultOutputTemplate
	}

	args := []string{
		"--no-warnings",
		"--no-playlist",
		"--no-progress",
		"-f", c.Format,
		"-o", filepath.Join(destination, template),
		"--print", "after_move:filepath",
	}
	args = append(args, c.ExtraArgs...)
	args = append(args, link)

	stdout, stderr, err := c.run(ctx, c.Path, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", &DownloadError{Link: link, Message: "download interrupted", Err: ctxErr}
		}
		return "", &DownloadError{Link: link, Message: errorMessage(stderr, err), Err: err}
	}

	path := lastLine(stdout)
	if path == "" {
		return "", &DownloadError{Link: link, Message: "yt-dlp did not report a file path"}
	}
	if _, err := os.Stat(path); err != nil {
		return "", &DownloadError{Link: link, Message: "downloaded file is missing", Err: err}
	}

	return path, nil
}

func errorMessage(stderr []byte, err error) string {
	msg := strings.TrimSpace(string(stderr))
	if msg == "" {
		return err.Error()
	}
	for _, line := range strings.Split(msg, "\n") {
		if strings.HasPrefix(line, "ERROR:") {
			return strings.TrimSpace(line)
		}
	}
	return msg
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// info is the subset of yt-dlp's JSON output that is used
type info struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Duration    *float64 `json:"duration"`
	UploadDate  string  `json:"upload_date"`
	Timestamp   int64   `json:"timestamp"`
	Uploader    string  `json:"uploader"`
	Channel     string  `json:"channel"`
	Thumbnail   string  `json:"thumbnail"`
	LiveStatus  string  `json:"live_status"`
}

func parseInfo(data []byte) (*info, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("yt-dlp returned no output")
	}
	var i info
	if err := json.Unmarshal(data, &i); err != nil {
		return nil, fmt.Errorf("failed to parse yt-dlp output: %w", err)
	}
	if i.LiveStatus == "is_upcoming" {
		return nil, &metadata.Error{Kind: metadata.LiveEventNotStarted, Message: "live event has not started"}
	}
	return &i, nil
}

func (i *info) toMetadata() *metadata.VideoMetadata {
	md := &metadata.VideoMetadata{
		Title:           i.Title,
		Uploader:        i.Uploader,
		Description:     i.Description,
		ThumbnailURL:    i.Thumbnail,
	}
	if i.Duration != nil {
		seconds := int(*i.Duration)
		md.DurationSeconds = &seconds
	}
	if md.Uploader == "" {
		md.Uploader = i.Channel
	}

	switch {
	case i.Timestamp > 0:
		t := time.Unix(i.Timestamp, 0).UTC()
		md.UploadDate = &t
	case i.UploadDate != "":
		if t, err := time.Parse("20060102", i.UploadDate); err == nil {
			md.UploadDate = &t
		}
	}
	return md
}

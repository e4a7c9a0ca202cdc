package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/dlukic/liftlab/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
)

const stateFileName = ".download-state.json"

// downloadState remembers what the last downloaded dataset looked like
// so refresh jobs can skip unchanged upstream files.
type downloadState struct {
	LastModified  string    `json:"lastModified"`
	ContentLength int64     `json:"contentLength"`
	DownloadedAt  time.Time `json:"downloadedAt"`
}

// Downloader fetches the raw competition results archive over HTTP.
type Downloader struct {
	httpClient  *http.Client
	downloadURL string
	rawDataDir  string
}

func NewDownloader(httpClient *http.Client, downloadURL, rawDataDir string) *Downloader {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Minute}
	}
	return &Downloader{
		httpClient:  httpClient,
		downloadURL: downloadURL,
		rawDataDir:  rawDataDir,
	}
}

// UpdateAvailable checks the upstream Last-Modified and content length
// against the state of the previous download. A missing state file or
// an upstream that exposes neither header counts as an update.
func (d *Downloader) UpdateAvailable(ctx context.Context) (_ bool, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "fetch.updateAvailable")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	state, err := d.readState()
	if err != nil {
		log.Debugf("no previous download state: %s", err)
		return true, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, d.downloadURL, nil)
	if err != nil {
		return false, fmt.Errorf("create head request: %w", err)
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("head request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Errorf("close head response body: %s", closeErr)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("head request: unexpected status %d", resp.StatusCode)
	}

	lastModified := resp.Header.Get("Last-Modified")
	if lastModified != "" && lastModified != state.LastModified {
		return true, nil
	}
	if resp.ContentLength > 0 && resp.ContentLength != state.ContentLength {
		return true, nil
	}
	if lastModified == "" && resp.ContentLength <= 0 {
		// upstream tells us nothing, assume changed
		return true, nil
	}
	return false, nil
}

// Download fetches the archive into the raw data dir and records the
// download state. Returns the path of the downloaded file.
func (d *Downloader) Download(ctx context.Context) (_ string, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "fetch.download")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if err := os.MkdirAll(d.rawDataDir, 0755); err != nil {
		return "", fmt.Errorf("create raw data dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.downloadURL, nil)
	if err != nil {
		return "", fmt.Errorf("create download request: %w", err)
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Errorf("close download response body: %s", closeErr)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download request: unexpected status %d", resp.StatusCode)
	}

	fileName := path.Base(d.downloadURL)
	if fileName == "." || fileName == "/" {
		fileName = "dataset.zip"
	}
	filePath := filepath.Join(d.rawDataDir, fileName)

	tmpPath := filePath + ".part"
	file, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("create download file: %w", err)
	}
	written, err := io.Copy(file, resp.Body)
	if err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("write download file: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("close download file: %w", err)
	}
	if err := os.Rename(tmpPath, filePath); err != nil {
		return "", fmt.Errorf("finalize download file: %w", err)
	}

	log.Debugf("downloaded %d bytes to %s", written, filePath)

	state := downloadState{
		LastModified:  resp.Header.Get("Last-Modified"),
		ContentLength: written,
		DownloadedAt:  time.Now(),
	}
	if err := d.writeState(state); err != nil {
		log.Errorf("failed to write download state: %s", err)
	}

	return filePath, nil
}

func (d *Downloader) statePath() string {
	return filepath.Join(d.rawDataDir, stateFileName)
}

func (d *Downloader) readState() (*downloadState, error) {
	data, err := os.ReadFile(d.statePath())
	if err != nil {
		return nil, err
	}
	var state downloadState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (d *Downloader) writeState(state downloadState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return os.WriteFile(d.statePath(), data, 0644)
}

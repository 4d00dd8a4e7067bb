package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"sort"

	"compengine/pkg/storage"
)

const reportContentType = "application/json"

// ReportArchive stores each run as a JSON report under
// <prefix>/<job>/<YYYY-MM-DD>/<started-at>.json.
type ReportArchive struct {
	provider storage.Provider
	prefix   string
}

func NewReportArchive(provider storage.Provider, prefix string) *ReportArchive {
	return &ReportArchive{provider: provider, prefix: prefix}
}

func (a *ReportArchive) Archive(ctx context.Context, run *Run) error {
	body, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to encode run report: %w", err)
	}

	started := run.StartedAt.UTC()
	key := path.Join(a.prefix, run.Job, started.Format("2006-01-02"), started.Format("20060102T150405.000000000Z")+".json")

	_, err = a.provider.Upload(ctx, &storage.UploadRequest{
		Key:         key,
		Reader:      bytes.NewReader(body),
		ContentType: reportContentType,
		Size:        int64(len(body)),
		Metadata: map[string]string{
			"job":    run.Job,
			"failed": fmt.Sprint(run.Error != ""),
		},
	})
	return err
}

// List returns the archived reports for job, newest first.
func (a *ReportArchive) List(ctx context.Context, job string) ([]*storage.ObjectInfo, error) {
	files, err := a.provider.ListFiles(ctx, path.Join(a.prefix, job)+"/")
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Key > files[j].Key })
	return files, nil
}

// Fetch loads one archived report. name is relative to the job's folder and
// cannot escape it.
func (a *ReportArchive) Fetch(ctx context.Context, job, name string) (*Run, error) {
	rel := path.Clean("/" + name)
	if rel == "/" {
		return nil, storage.ErrObjectNotFound
	}
	key := path.Join(a.prefix, job, rel)

	resp, err := a.provider.Download(ctx, key)
	if err != nil {
		return nil, err
	}
	defer resp.Reader.Close()

	body, err := io.ReadAll(resp.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read run report: %w", err)
	}

	var run Run
	if err := json.Unmarshal(body, &run); err != nil {
		return nil, fmt.Errorf("failed to decode run report: %w", err)
	}
	return &run, nil
}

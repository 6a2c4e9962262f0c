package tool

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/animus-labs/wfrunner/internal/archive"
	"github.com/animus-labs/wfrunner/internal/domain"
)

// SourceInputKey names the input whose location is reported as the provenance
// of every output.
const SourceInputKey = "input"

// Run executes the workflow and returns the finalized output locations plus one
// metadata record per output, in dependency order.
func (t *Tool) Run(ctx context.Context, inputs map[string]string, inputMeta map[string]domain.InputMetadata, outputs map[string]string) (map[string]any, []domain.OutputMetadata, error) {
	l, err := t.resolveLayout(outputs)
	if err != nil {
		return nil, nil, err
	}

	res, err := t.validateAndAssess(ctx, l, inputs)
	t.record(ctx, l, res)
	if err != nil {
		t.logger.Error("workflow pipeline failed", "error", err)
		return nil, nil, err
	}

	files, err := t.collect(l)
	if err != nil {
		return nil, nil, err
	}
	annotations := t.publishArchives(ctx, l)

	var sources []string
	if meta, ok := inputMeta[SourceInputKey]; ok && meta.FilePath != "" {
		sources = []string{meta.FilePath}
	}
	finalized, records := t.describe(l, files, sources, annotations)
	return finalized, records, nil
}

// collected lists what the output trees produced.
type collected struct {
	images []string
}

// collect packs the output trees of a successful run and extracts the metrics
// file and report images.
func (t *Tool) collect(l layout) (collected, error) {
	var out collected

	if exists(l.resultsDir) {
		policy, _ := domain.OutputResultsArchive.Policy()
		if err := archive.Pack(l.resultsDir, l.managed[domain.OutputResultsArchive], policy.ArchiveRoot(l.participant, t.stamp)); err != nil {
			return out, err
		}
		if err := t.copyMetrics(l); err != nil {
			return out, err
		}
	}
	if exists(l.statsDir) {
		policy, _ := domain.OutputStatsArchive.Policy()
		if err := archive.Pack(l.statsDir, l.managed[domain.OutputStatsArchive], policy.ArchiveRoot(l.participant, t.stamp)); err != nil {
			return out, err
		}
	}
	if exists(l.otherDir) {
		policy, _ := domain.OutputOtherArchive.Policy()
		if err := archive.Pack(l.otherDir, l.managed[domain.OutputOtherArchive], policy.ArchiveRoot(l.participant, t.stamp)); err != nil {
			return out, err
		}
		images, err := copyImages(l.otherDir, l.executionPath)
		if err != nil {
			return out, err
		}
		out.images = images
	}
	return out, nil
}

// copyMetrics copies the first results file named <participant>*.json to the
// metrics location.
func (t *Tool) copyMetrics(l layout) error {
	entries, err := os.ReadDir(l.resultsDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, l.participant) || !strings.HasSuffix(name, ".json") {
			continue
		}
		return archive.CopyFile(filepath.Join(l.resultsDir, name), l.managed[domain.OutputMetrics])
	}
	t.logger.Warn("no metrics file produced", "dir", l.resultsDir, "participant", l.participant)
	return nil
}

func copyImages(root, destDir string) ([]string, error) {
	images := []string{}
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() || !domain.IsImageFile(d.Name()) {
			return nil
		}
		dest := filepath.Join(destDir, d.Name())
		if err := archive.CopyFile(p, dest); err != nil {
			return err
		}
		images = append(images, dest)
		return nil
	})
	return images, err
}

// publishArchives uploads the produced archives when a publisher is configured
// and returns per-category annotations.
func (t *Tool) publishArchives(ctx context.Context, l layout) map[domain.OutputCategory]domain.Metadata {
	annotations := map[domain.OutputCategory]domain.Metadata{}
	if t.publisher == nil {
		return annotations
	}
	prefix := path.Join(l.participant, t.stamp)
	targets := []struct {
		cat  domain.OutputCategory
		file string
	}{
		{domain.OutputResultsArchive, l.managed[domain.OutputResultsArchive]},
		{domain.OutputStatsArchive, l.managed[domain.OutputStatsArchive]},
		{domain.OutputOtherArchive, l.managed[domain.OutputOtherArchive]},
		{"", l.workdirArchive},
	}
	for _, target := range targets {
		if !exists(target.file) {
			continue
		}
		obj, err := t.publisher.Publish(ctx, prefix, target.file)
		if err != nil {
			t.logger.Warn("archive publishing failed", "path", target.file, "error", err)
			continue
		}
		if target.cat != "" {
			annotations[target.cat] = domain.Metadata{"object_key": obj.Key, "sha256": obj.SHA256}
		}
	}
	return annotations
}

// describe builds the finalized output mapping and the ordered metadata records.
func (t *Tool) describe(l layout, files collected, sources []string, annotations map[domain.OutputCategory]domain.Metadata) (map[string]any, []domain.OutputMetadata) {
	finalized := map[string]any{}
	var records []domain.OutputMetadata

	for _, cat := range domain.OutputCategories {
		policy, _ := cat.Policy()
		rec := domain.OutputMetadata{
			Key:      string(cat),
			DataType: policy.DataType,
			FileType: policy.FileType,
			Sources:  sources,
			Metadata: domain.Metadata{"runner": RunnerTag},
		}
		if cat == domain.OutputReportImages {
			rec.FilePaths = files.images
			if rec.FilePaths == nil {
				rec.FilePaths = []string{}
			}
			finalized[string(cat)] = rec.FilePaths
			records = append(records, rec)
			continue
		}

		p := l.managed[cat]
		if !policy.Always && !exists(p) {
			continue
		}
		if policy.Hidden {
			rec.Sources = nil
			rec.Metadata["visible"] = false
		}
		for k, v := range annotations[cat] {
			rec.Metadata[k] = v
		}
		rec.FilePath = p
		finalized[string(cat)] = p
		records = append(records, rec)
	}

	for _, out := range l.populable {
		finalized[out.Key] = out.Path
		records = append(records, domain.OutputMetadata{
			Key:      out.Key,
			FilePath: out.Path,
			Sources:  sources,
			Metadata: domain.Metadata{"runner": RunnerTag},
		})
	}
	return finalized, records
}

// record stores the run summary in the ledger. Ledger failures are only logged.
func (t *Tool) record(ctx context.Context, l layout, res assessment) {
	if t.recorder == nil || !res.ran {
		return
	}
	err := t.recorder.Record(ctx, domain.RunRecord{
		RunID:         t.runID,
		Participant:   l.participant,
		RemoteURI:     res.identity.RemoteURI,
		Revision:      res.identity.Revision,
		Tainted:       res.identity.Tainted,
		EngineVersion: res.engineVersion,
		Image:         res.image,
		Replayed:      res.replayed,
		Outcome:       res.outcome,
		StartedAt:     res.startedAt,
		FinishedAt:    res.finishedAt,
	})
	if err != nil {
		t.logger.Warn("run ledger write failed", "error", err)
	}
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

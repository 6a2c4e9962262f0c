package domain

import "strings"

// OutputCategory enumerates the output locations the runner manages itself.
// Any other output key is a populable output handed straight to the workflow.
type OutputCategory string

const (
	OutputMetrics         OutputCategory = "metrics"
	OutputResultsArchive  OutputCategory = "tar_view"
	OutputStatsArchive    OutputCategory = "tar_nf_stats"
	OutputOtherArchive    OutputCategory = "tar_other"
	OutputWorkflowArchive OutputCategory = "workflow_archive"
	OutputReportImages    OutputCategory = "report_images"
)

// OutputCategories lists the managed categories in metadata order. Order matters
// when the description of one output references the path of another.
var OutputCategories = []OutputCategory{
	OutputMetrics,
	OutputResultsArchive,
	OutputStatsArchive,
	OutputOtherArchive,
	OutputWorkflowArchive,
	OutputReportImages,
}

// OutputPolicy describes how the runner names and reports a managed output.
type OutputPolicy struct {
	DataType string
	FileType string
	// DefaultName returns the file name used when the host did not supply a path.
	DefaultName func(participant, stamp string) string
	// ArchiveRoot is the root entry name of the archive, empty for non-archives.
	ArchiveRoot func(participant, stamp string) string
	Hidden      bool
	// Always means the metadata entry is emitted even when the file was not produced.
	Always bool
}

var outputPolicies = map[OutputCategory]OutputPolicy{
	OutputMetrics: {
		DataType:    "assessment",
		FileType:    "JSON",
		DefaultName: func(participant, _ string) string { return participant + ".json" },
		Always:      true,
	},
	OutputResultsArchive: {
		DataType:    "tool_statistics",
		FileType:    "TAR",
		DefaultName: func(participant, stamp string) string { return uniqueName(participant, stamp) + ".tar.gz" },
		ArchiveRoot: uniqueName,
		Always:      true,
	},
	OutputStatsArchive: {
		DataType:    "workflow_stats",
		FileType:    "TAR",
		DefaultName: func(string, string) string { return "nfstats.tar.gz" },
		ArchiveRoot: func(string, string) string { return "nextflow-stats" },
		Always:      true,
	},
	OutputOtherArchive: {
		DataType:    "other",
		FileType:    "TAR",
		DefaultName: func(string, string) string { return "other_files.tar.gz" },
		ArchiveRoot: func(participant, stamp string) string { return "other_" + uniqueName(participant, stamp) },
		Always:      true,
	},
	OutputWorkflowArchive: {
		DataType:    "file",
		FileType:    "TAR",
		DefaultName: func(string, string) string { return ".workflow.tar.gz" },
		Hidden:      true,
	},
	OutputReportImages: {
		DataType: "report_image",
		FileType: "IMG",
		Always:   true,
	},
}

// Policy returns the handling policy of a managed category.
func (c OutputCategory) Policy() (OutputPolicy, bool) {
	p, ok := outputPolicies[c]
	return p, ok
}

// IsManagedOutput reports whether key names a managed output category.
func IsManagedOutput(key string) bool {
	_, ok := outputPolicies[OutputCategory(key)]
	return ok
}

func uniqueName(participant, stamp string) string {
	return participant + "_" + stamp
}

// ImageFileTypes are the extensions collected from the miscellaneous output tree
// as report images.
var ImageFileTypes = map[string]struct{}{
	"png": {},
	"svg": {},
	"pdf": {},
	"jpg": {},
	"tif": {},
}

// IsImageFile reports whether name carries an image-like extension.
func IsImageFile(name string) bool {
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return false
	}
	_, ok := ImageFileTypes[strings.ToLower(name[idx+1:])]
	return ok
}

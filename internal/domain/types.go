package domain

// Metadata is an unstructured annotation container attached to outputs.
type Metadata map[string]any

// InputMetadata is the host-supplied description of an input location.
type InputMetadata struct {
	FilePath string   `json:"file_path" yaml:"file_path"`
	DataType string   `json:"data_type,omitempty" yaml:"data_type"`
	FileType string   `json:"file_type,omitempty" yaml:"file_type"`
	Sources  []string `json:"sources,omitempty" yaml:"sources"`
	Metadata Metadata `json:"meta_data,omitempty" yaml:"meta_data"`
}

// OutputMetadata is the record returned to the host for each finalized output.
type OutputMetadata struct {
	Key       string   `json:"key"`
	DataType  string   `json:"data_type,omitempty"`
	FileType  string   `json:"file_type,omitempty"`
	FilePath  string   `json:"file_path,omitempty"`
	FilePaths []string `json:"file_paths,omitempty"`
	Sources   []string `json:"sources,omitempty"`
	Metadata  Metadata `json:"meta_data,omitempty"`
}

package domain

import "errors"

// Error taxonomy of a workflow run. Phase errors wrap one of these sentinels so
// callers can classify failures with errors.Is.
var (
	ErrConfiguration      = errors.New("configuration_error")
	ErrMaterialization    = errors.New("materialization_error")
	ErrEngineProvisioning = errors.New("engine_provisioning_error")
	ErrExecutionExhausted = errors.New("execution_exhausted")
	ErrArchive            = errors.New("archive_error")
)

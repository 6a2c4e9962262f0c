package domain

// Configuration keys consumed by the runner itself.
const (
	KeyExecution        = "execution"
	KeyProject          = "project"
	KeyDescription      = "description"
	KeyRepoURI          = "nextflow_repo_uri"
	KeyRepoTag          = "nextflow_repo_tag"
	KeyRepoRelDir       = "nextflow_repo_reldir"
	KeyRepoProfile      = "nextflow_repo_profile"
	KeyConfigDir        = "__config_dir__"
	KeyParticipantID    = "participant_id"
	KeyDockerUnconfined = "docker_unconfined"
)

var reservedConfigKeys = map[string]struct{}{
	KeyExecution:   {},
	KeyProject:     {},
	KeyDescription: {},
	KeyRepoURI:     {},
	KeyRepoTag:     {},
	KeyRepoRelDir:  {},
	KeyRepoProfile: {},
	KeyConfigDir:   {},
}

// IsReservedConfigKey reports whether a configuration key is orchestration-only
// and must not reach the workflow parameter document.
func IsReservedConfigKey(key string) bool {
	_, ok := reservedConfigKeys[key]
	return ok
}

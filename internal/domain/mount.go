package domain

import "strings"

// AccessMode is the container access mode of a bind mount.
type AccessMode string

const (
	AccessReadOnly  AccessMode = "ro"
	AccessReadWrite AccessMode = "rw"
)

// MountAnnotation is appended to every bind mount: private propagation and a
// shared SELinux relabel.
const MountAnnotation = "rprivate,z"

// MountSpec is a host path bound at the same path inside the container.
type MountSpec struct {
	HostPath string
	Access   AccessMode
}

// IsDir reports whether the mount refers to a directory (trailing separator).
func (m MountSpec) IsDir() bool {
	return strings.HasSuffix(m.HostPath, "/")
}

// Options renders the mode field of a docker volume declaration.
func (m MountSpec) Options() string {
	return string(m.Access) + "," + MountAnnotation
}

// VolumeArg renders the value of a docker -v flag.
func (m MountSpec) VolumeArg() string {
	return m.HostPath + ":" + m.HostPath + ":" + m.Options()
}

package config

// MountOptions holds high-level settings for mounting.
// No go-fuse types are exposed here.
type MountOptions struct {
	Debug      bool   // fuse wire-level debug logs
	FsName     string // mount's FsName (first column of /proc/mounts)
	Name       string // mount's Name (fuse.<Name> type)
	AllowOther bool   // let other users access the mount; needs user_allow_other
}

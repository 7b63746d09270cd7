package util

// Environment variables controlling optional profiling.
const (
	ProfileDir    = "PROFILE_DIR"
	ProfileAddr   = "PROFILE_ADDR"
	ProfileEnable = "PROFILE_ENABLED"
)

const (
	DefaultProfileDir  = "profiles"
	DefaultProfileAddr = ":6060"
)

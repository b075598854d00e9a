package hostenv

import "strings"

// SandboxEnvVar forces sandboxed mode when set to a truthy value.
const SandboxEnvVar = "BUNDLEFETCH_SANDBOXED"

// SandboxedFromEnv reports whether the environment marks this process as
// sandboxed. getenv is usually os.Getenv.
func SandboxedFromEnv(getenv func(string) string) bool {
	if getenv == nil {
		return false
	}
	return truthy(getenv(SandboxEnvVar))
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

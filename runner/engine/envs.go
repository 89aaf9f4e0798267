package engine

import (
	"fmt"
	"maps"
	"slices"
)

type EnvVars []string

// ConstructEnvs converts a key/value environment map into a
// docker-friendly []string{"KEY=value", ...} slice. Keys are emitted
// in sorted order.
func ConstructEnvs(envs map[string]string) EnvVars {
	var dockerEnvs EnvVars
	for _, k := range slices.Sorted(maps.Keys(envs)) {
		dockerEnvs = append(dockerEnvs, fmt.Sprintf("%s=%s", k, envs[k]))
	}
	return dockerEnvs
}

// Slice returns the EnvVar as a []string slice.
func (ev EnvVars) Slice() []string {
	return ev
}

// AddEnv adds a key=value string to the EnvVar.
func (ev *EnvVars) AddEnv(key, value string) {
	*ev = append(*ev, fmt.Sprintf("%s=%s", key, value))
}

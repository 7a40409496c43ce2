package terminal

import (
	"testing"
)

// setupCleanEnv controls every environment variable the package reads and
// sets only the given ones.
func setupCleanEnv(t *testing.T, envVars map[string]string) {
	t.Helper()

	// NO_COLOR is checked for presence, so it is only set when specified.
	if value, specified := envVars["NO_COLOR"]; specified {
		t.Setenv("NO_COLOR", value)
	}

	for _, v := range append([]string{"CLICOLOR", "CLICOLOR_FORCE", "TERM"}, ciEnvVars...) {
		t.Setenv(v, envVars[v])
	}
}

// Package testutil gates tests that need live backing services.
package testutil

import (
	"os"
	"strconv"
	"strings"
	"testing"
)

// IntegrationEnv turns on tests that start containers or reach real brokers.
const IntegrationEnv = "STOREFRONT_INTEGRATION"

// RequireIntegration skips t in short mode and unless IntegrationEnv holds a
// true value.
func RequireIntegration(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if !integrationEnabled(os.LookupEnv) {
		t.Skipf("skipping integration test (set %s=1 to run)", IntegrationEnv)
	}
}

func integrationEnabled(lookup func(string) (string, bool)) bool {
	raw, ok := lookup(IntegrationEnv)
	if !ok {
		return false
	}
	on, err := strconv.ParseBool(strings.TrimSpace(raw))
	return err == nil && on
}

package main

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctrlauth/internal/config"
	"ctrlauth/internal/logging"
)

func TestReportGeneratedPassword(t *testing.T) {
	var out bytes.Buffer
	reportGeneratedPassword(&out, "admin", "s3cret-generated")

	assert.Contains(t, out.String(), `"admin"`)
	assert.Contains(t, out.String(), "s3cret-generated")
}

func TestRun_GeneratedPasswordStaysOutOfLogs(t *testing.T) {
	var logs bytes.Buffer
	logger := logging.New("DEBUG", &logs)

	stderr := os.Stderr
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stderr = w
	t.Cleanup(func() { os.Stderr = stderr })

	cfg := &config.Config{
		ServerPort:     "0",
		APIPrefix:      "/api/kytos/core",
		StoreBackend:   config.BackendMemory,
		PasswordHasher: "bcrypt",
		SuperuserName:  "admin",
		TokenTTL:       time.Minute,
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, run(ctx, cfg, logger))

	require.NoError(t, w.Close())
	var printed bytes.Buffer
	_, err = printed.ReadFrom(r)
	require.NoError(t, err)

	const marker = "generated password: "
	idx := strings.Index(printed.String(), marker)
	require.GreaterOrEqual(t, idx, 0, printed.String())
	generated := strings.Fields(printed.String()[idx+len(marker):])[0]

	assert.NotEmpty(t, generated)
	assert.NotContains(t, logs.String(), generated)
	assert.Contains(t, logs.String(), "generated superuser password printed to stderr")
}

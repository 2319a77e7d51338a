package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandboxnu/searchneu-sub001/banner"
	"github.com/sandboxnu/searchneu-sub001/banner/bannertest"
	"github.com/sandboxnu/searchneu-sub001/cache"
)

func fakeBanner(t *testing.T) *bannertest.Server {
	t.Helper()
	srv := bannertest.New()
	t.Cleanup(srv.Close)

	srv.Terms = []bannertest.Entry{{Code: "202530", Description: "Spring 2025 Semester"}}
	srv.Subjects = []bannertest.Entry{{Code: "CS", Description: "Computer Science"}}
	srv.Records = []banner.Record{
		bannertest.Record("30001", "CS", "2500", "Fundamentals of Computer Sci 1"),
		bannertest.Record("30002", "CS", "2510", "Fundamentals of Computer Sci 2"),
	}
	for i := range srv.Records {
		srv.Records[i].SubjectDescription = "Computer Science"
	}
	srv.Titles["30001"] = "Fundamentals of Computer Science 1"
	srv.Titles["30002"] = "Fundamentals of Computer Science 2"
	return srv
}

func run(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(context.Background())
}

func TestGenerate(t *testing.T) {
	srv := fakeBanner(t)
	dir := t.TempDir()
	cacheDir := filepath.Join(dir, "cache")
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(`
banner:
  base_url: %s
  page_size: 5
  cookie_pool: 1
fetch:
  max_retries: 0
  timeout: 5s
cache:
  dir: %s
logging:
  level: disabled
terms:
  - term: "202530"
  - term: "202540"
`, srv.BaseURL(), cacheDir)), 0o644))

	require.NoError(t, run(t, "--config", path, "generate", "--terms", "202530"))

	entry, err := cache.New(cacheDir).Read("202530")
	require.NoError(t, err)
	assert.Equal(t, 2, entry.SectionCount())
	requests := srv.Requests("searchResults")

	t.Run("existing artifact is skipped", func(t *testing.T) {
		require.NoError(t, run(t, "--config", path, "generate", "--terms", "202530"))
		assert.Equal(t, requests, srv.Requests("searchResults"))
	})

	t.Run("failed term is reported", func(t *testing.T) {
		err := run(t, "--config", path, "generate", "--terms", "202530,202540")
		assert.EqualError(t, err, "generate failed for terms: 202540")
	})

	t.Run("unknown term is rejected", func(t *testing.T) {
		err := run(t, "--config", path, "generate", "--terms", "209910")
		assert.ErrorContains(t, err, "unknown terms 209910")
	})
}

func TestDatabaseCommandsNeedURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: disabled\n"), 0o644))

	for _, command := range []string{"migrate", "upload", "update"} {
		err := run(t, "--config", path, command)
		assert.EqualError(t, err, "database.url is not configured", command)
	}
}

func TestTermFailures(t *testing.T) {
	assert.NoError(t, termFailures(nil).err("upload"))
	assert.EqualError(t, termFailures{"202530", "202540"}.err("upload"), "upload failed for terms: 202530, 202540")
}

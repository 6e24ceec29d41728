package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/dukex/stepwise/pkg/models"
	"github.com/dukex/stepwise/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var catalogPath = filepath.Join("..", "..", "pkg", "catalog", "testdata", "subscription.yaml")

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer

	app := NewApp()
	app.Writer = &out
	app.ErrWriter = &out

	err := app.Run(context.Background(), append([]string{"stepwise"}, args...))

	return out.String(), err
}

func TestCLI_ImportAndNavigate(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, "--database-url", dir, "import", catalogPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 1 processes: 4 steps created, 0 updated, 2 rules, 1 jobs")

	record := models.NewRecord("subscription", "sub-1")
	record.Set("amount", 120.0)
	require.NoError(t, file.NewPersistence(dir).Save(context.Background(), record))

	out, err = run(t, "--database-url", dir, "--catalog", catalogPath, "start", "subscription", "sub-1", "state")
	require.NoError(t, err)
	assert.Contains(t, out, "subscription/sub-1 state: (none) -> draft")

	out, err = run(t, "--database-url", dir, "--catalog", catalogPath, "next", "subscription", "sub-1", "state")
	require.NoError(t, err)
	assert.Contains(t, out, "draft -> sign")

	out, err = run(t, "--database-url", dir, "--catalog", catalogPath, "previous", "subscription", "sub-1", "state")
	require.NoError(t, err)
	assert.Contains(t, out, "sign -> draft")
}

func TestCLI_ImportAnnouncesChanges(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, "--database-url", dir, "import", "--event-bus", "gochannel", catalogPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 1 processes: 4 steps created, 0 updated")

	_, err = run(t, "--database-url", dir, "import", "--event-bus", "carrier-pigeon", catalogPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported event bus provider")

	_, err = run(t, "--database-url", dir, "import", "--redis-url", "http://localhost", catalogPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid redis url")
}

func TestCLI_Graph(t *testing.T) {
	dir := t.TempDir()

	_, err := run(t, "--database-url", dir, "import", catalogPath)
	require.NoError(t, err)

	out, err := run(t, "--database-url", dir, "graph", "subscription", "state")
	require.NoError(t, err)
	assert.Contains(t, out, "digraph")
	assert.Contains(t, out, "route")
}

func TestCLI_Batch(t *testing.T) {
	dir := t.TempDir()

	_, err := run(t, "--database-url", dir, "import", catalogPath)
	require.NoError(t, err)

	store := file.NewPersistence(dir)

	for _, id := range []string{"sub-1", "sub-2"} {
		record := models.NewRecord("subscription", id)
		record.SetField("state", "draft")

		if id == "sub-1" {
			record.Set("amount", 80.0)
		}

		require.NoError(t, store.Save(context.Background(), record))
	}

	out, err := run(t, "--database-url", dir, "--catalog", catalogPath,
		"batch", "--model", "subscription", "--field", "state", "--step", "draft")
	require.NoError(t, err)
	assert.Contains(t, out, "Selected 2, advanced 1, failed 1")
	assert.Contains(t, out, "subscription/sub-2")
}

func TestCLI_WrongArguments(t *testing.T) {
	_, err := run(t, "--database-url", t.TempDir(), "next", "subscription")
	assert.ErrorIs(t, err, errUsage)
}

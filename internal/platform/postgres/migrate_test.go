package postgres_test

import (
	"context"
	"strings"
	"testing"

	"github.com/phrazzld/scry-assess/internal/platform/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationFilesAreOrderedGooseScripts(t *testing.T) {
	t.Parallel()
	files, err := postgres.MigrationFiles()
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for i, f := range files {
		assert.True(t, strings.HasSuffix(f, ".sql"), f)
		if i > 0 {
			assert.Less(t, files[i-1], f)
		}
	}
}

func TestMigrateRejectsUnknownCommand(t *testing.T) {
	db, _ := newMock(t)
	err := postgres.Migrate(context.Background(), db, "sideways", nil)
	assert.Error(t, err)
}

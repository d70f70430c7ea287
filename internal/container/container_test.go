package container_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mautops/results-gin/internal/config"
	"github.com/mautops/results-gin/internal/container"
	"github.com/mautops/results-gin/internal/model"
	"github.com/mautops/results-gin/internal/service"
	"github.com/mautops/results-gin/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	data, err := yaml.Marshal(testutil.Roster())
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "directory.yaml")
	require.NoError(t, os.WriteFile(path, data, 0644))

	cfg := config.Default()
	cfg.Database.Driver = "sqlite"
	cfg.Database.DBName = ":memory:"
	cfg.Directory.FilePath = path
	cfg.Log.Level = "error"
	return cfg
}

func TestNewContainer_FileDirectory(t *testing.T) {
	ctr, err := container.NewContainer(testConfig(t))
	require.NoError(t, err)
	defer ctr.Close()

	assert.NotNil(t, ctr.DB())
	assert.NotNil(t, ctr.Logger())
	assert.NotNil(t, ctr.Hub())
	assert.NotNil(t, ctr.Engine())
	assert.Nil(t, ctr.OpenFGAClient())
	assert.Nil(t, ctr.Permissions())
	assert.Nil(t, ctr.KeycloakValidator())
	assert.Nil(t, ctr.RedisCache())

	ctx := context.Background()
	rec, err := ctr.ResultService().Submit(ctx, testutil.LecturerCS, service.SubmissionInput{
		StudentID:      "s-001",
		UnitCode:       "cs101",
		AssessmentType: "cat1",
		AcademicYear:   "2024/2025",
		Semester:       1,
		Marks:          service.Mark{Value: 18, Set: true},
		MaxMarks:       service.Mark{Value: 20, Set: true},
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPublished, rec.Status)

	results, err := ctr.QueryService().GetStudentResults(ctx, "s-001", service.SummaryFilter{})
	require.NoError(t, err)
	require.Len(t, results, 1)

	summary, err := ctr.AggregationService().Summarize(ctx, "s-001", service.SummaryFilter{})
	require.NoError(t, err)
	assert.Equal(t, 4.0, summary.OverallGPA)

	counts, err := ctr.StatisticsService().StatusCounts(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, counts[string(model.StatusPublished)])
}

func TestNewContainer_Errors(t *testing.T) {
	t.Run("missing directory file", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Directory.FilePath = filepath.Join(t.TempDir(), "missing.yaml")
		_, err := container.NewContainer(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load directory")
	})

	t.Run("http directory without openfga", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Directory.Source = "http"
		cfg.Directory.BaseURL = "http://directory.invalid"
		_, err := container.NewContainer(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "openfga.store_id")
	})
}

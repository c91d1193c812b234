package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/dartsatlas-scraper/internal/config"
	"github.com/JakeFAU/dartsatlas-scraper/internal/scraper"
)

type fakeApp struct {
	result  scraper.ScrapeResult
	err     error
	runErr  error
	opts    scraper.Options
	timeout time.Duration
	ran     bool
	closed  int
}

func (a *fakeApp) ScrapeWithTimeout(_ context.Context, opts scraper.Options, d time.Duration) (scraper.ScrapeResult, error) {
	a.opts = opts
	a.timeout = d
	return a.result, a.err
}

func (a *fakeApp) Run(context.Context) error {
	a.ran = true
	return a.runErr
}

func (a *fakeApp) Close(context.Context) error {
	a.closed++
	return nil
}

func withFakeApp(t *testing.T, app *fakeApp) {
	t.Helper()
	t.Setenv("SCRAPER_STORAGE_BACKEND", "memory")
	orig := newApp
	newApp = func(context.Context, config.Config) (App, error) { return app, nil }
	t.Cleanup(func() { newApp = orig })
}

func execute(args ...string) (string, error) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestScrapeCommandPrintsResult(t *testing.T) {
	app := &fakeApp{result: scraper.ScrapeResult{
		Success:     true,
		RunID:       "run-1",
		Attempts:    1,
		Tournaments: []scraper.Tournament{{ID: 1, Name: "Summer Open"}},
		TotalCount:  1,
	}}
	withFakeApp(t, app)

	out, err := execute("scrape",
		"--name", "Open",
		"--date", "2025-08-08",
		"--start-date", "2025-08-01",
		"--all", "--max-pages", "3",
		"--entries", "--save", "--filename", "run.json",
		"--timeout", "2m",
	)
	require.NoError(t, err)

	var res scraper.ScrapeResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Success)
	assert.Equal(t, "run-1", res.RunID)
	assert.Len(t, res.Tournaments, 1)

	require.NotNil(t, app.opts.SearchParams)
	assert.Equal(t, "Open", app.opts.SearchParams.Name)
	assert.Equal(t, "2025-08-08", app.opts.SearchParams.Date)
	assert.True(t, app.opts.ScrapeAllPages)
	assert.Equal(t, 3, app.opts.MaxPages)
	assert.True(t, app.opts.IncludeEntries)
	assert.True(t, app.opts.SaveResults)
	assert.Equal(t, "run.json", app.opts.Filename)
	assert.Equal(t, 2*time.Minute, app.timeout)
	assert.Equal(t, 1, app.closed)
}

func TestScrapeCommandWithoutFilters(t *testing.T) {
	app := &fakeApp{result: scraper.ScrapeResult{Success: true}}
	withFakeApp(t, app)

	_, err := execute("scrape", "--page", "2")
	require.NoError(t, err)
	assert.Nil(t, app.opts.SearchParams)
	assert.Equal(t, 2, app.opts.Page)
	assert.False(t, app.opts.SaveResults)
}

func TestScrapeCommandFailsOnUnsuccessfulResult(t *testing.T) {
	app := &fakeApp{result: scraper.ScrapeResult{
		Success:  false,
		Attempts: 3,
		Error:    "scrape failed after 3 attempts: fetch https://www.dartsatlas.com: no such host",
	}}
	withFakeApp(t, app)

	out, err := execute("scrape")
	require.ErrorIs(t, err, errScrapeFailed)
	assert.Contains(t, out, `"success": false`)
	assert.Equal(t, 1, app.closed)
}

func TestScrapeCommandTimeout(t *testing.T) {
	app := &fakeApp{err: scraper.ErrTimeout}
	withFakeApp(t, app)

	out, err := execute("scrape")
	require.ErrorIs(t, err, scraper.ErrTimeout)
	assert.Empty(t, out)
	assert.Equal(t, 1, app.closed)
}

func TestServeCommandRunsApp(t *testing.T) {
	app := &fakeApp{runErr: context.Canceled}
	withFakeApp(t, app)

	_, err := execute("serve")
	require.NoError(t, err)
	assert.True(t, app.ran)
	assert.Equal(t, 1, app.closed)
}

func TestServeCommandPropagatesErrors(t *testing.T) {
	app := &fakeApp{runErr: errors.New("bind: address already in use")}
	withFakeApp(t, app)

	_, err := execute("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address already in use")
}

func TestRootCommandRejectsMissingConfigFile(t *testing.T) {
	withFakeApp(t, &fakeApp{})

	_, err := execute("--config", "/does/not/exist.yaml", "scrape")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestResolveAppWithoutApp(t *testing.T) {
	_, err := resolveApp(context.Background())
	require.Error(t, err)
}

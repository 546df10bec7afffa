package runner

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/ema-monitor/internal/extract"
	"github.com/JakeFAU/ema-monitor/internal/monitor"
	"github.com/JakeFAU/ema-monitor/internal/notify"
)

var quietListing = listing(
	"Agency publishes annual report",
	"Meeting highlights from the committee",
)

func runTrial(t *testing.T, dir string, fetcher *mockFetcher, notifier *recordingNotifier, sources ...string) Result {
	t.Helper()
	if len(sources) == 0 {
		sources = []string{newsURL}
	}
	runner, err := NewTrial(TrialConfig{Sources: sources}, nil, newDeps(t, dir, fetcher, notifier))
	require.NoError(t, err)
	res, err := runner.Run(context.Background())
	require.NoError(t, err)
	return res
}

func TestTrialFirstRunSendsBaselineReport(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fetcher := &mockFetcher{}
	fetcher.On("Fetch", mock.Anything, newsURL).Return(quietListing, nil).Once()
	notifier := &recordingNotifier{deliver: true}

	res := runTrial(t, dir, fetcher, notifier)

	assert.Equal(t, []monitor.EventKind{monitor.EventPeriodicReport}, notifier.kinds())
	assert.True(t, res.Decision.Baseline)
	assert.Equal(t, monitor.StatusNotFound, notifier.events[0].Status)
	assert.Equal(t, 1, notifier.events[0].ExecutionCount)

	st := load(t, dir)
	assert.Equal(t, monitor.StatusNotFound, st.LastStatus)
	assert.Equal(t, 1, st.ExecutionCount)
	assert.True(t, st.HasReportDate())
	fetcher.AssertExpectations(t)
}

func TestTrialDiscovery(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	seed(t, dir, monitor.RunState{LastStatus: monitor.StatusNotFound, ExecutionCount: 5})

	fetcher := &mockFetcher{}
	fetcher.On("Fetch", mock.Anything, newsURL).Return(listing(
		"Agency publishes annual report",
		"CBP501 Phase III trial start announced",
	), nil).Once()
	notifier := &recordingNotifier{deliver: true}

	res := runTrial(t, dir, fetcher, notifier)

	require.Equal(t, []monitor.EventKind{monitor.EventDiscovery}, notifier.kinds())
	ev := notifier.events[0]
	require.Len(t, ev.Items, 1)
	assert.Equal(t, monitor.ConfidenceHigh, ev.Items[0].Confidence)
	assert.Equal(t, "https://www.ema.europa.eu/en/news/item-1", ev.Items[0].URL)
	assert.Equal(t, monitor.StatusFound, res.Status)

	msg, err := notify.TrialComposer{}.Compose(ev)
	require.NoError(t, err)
	assert.True(t, msg.Broadcast())

	st := load(t, dir)
	assert.Equal(t, monitor.StatusFound, st.LastStatus)
	assert.Equal(t, 6, st.ExecutionCount)
}

func TestTrialEventOnlyMatchIsNotAFinding(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	seed(t, dir, monitor.RunState{LastStatus: monitor.StatusNotFound, ExecutionCount: 1})

	fetcher := &mockFetcher{}
	fetcher.On("Fetch", mock.Anything, newsURL).Return(listing("Phase III study begins for another drug"), nil).Once()
	notifier := &recordingNotifier{deliver: true}

	res := runTrial(t, dir, fetcher, notifier)
	assert.Empty(t, notifier.kinds())
	assert.Equal(t, monitor.StatusNotFound, res.Status)
	assert.Empty(t, res.Items)
}

func TestTrialStatusLost(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	seed(t, dir, monitor.RunState{LastStatus: monitor.StatusFound, ExecutionCount: 7})

	fetcher := &mockFetcher{}
	fetcher.On("Fetch", mock.Anything, newsURL).Return(quietListing, nil).Once()
	notifier := &recordingNotifier{deliver: true}

	runTrial(t, dir, fetcher, notifier)

	// Count 8 is also a periodic slot; the status change wins.
	assert.Equal(t, []monitor.EventKind{monitor.EventStatusChangeToNotFound}, notifier.kinds())
	assert.Equal(t, monitor.StatusNotFound, load(t, dir).LastStatus)
}

func TestTrialPeriodicReportWhileFound(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	seed(t, dir, monitor.RunState{LastStatus: monitor.StatusFound, ExecutionCount: 11})

	fetcher := &mockFetcher{}
	fetcher.On("Fetch", mock.Anything, newsURL).Return(listing("CBP501 Phase III trial start announced"), nil).Once()
	notifier := &recordingNotifier{deliver: true}

	runTrial(t, dir, fetcher, notifier)

	require.Equal(t, []monitor.EventKind{monitor.EventPeriodicReport}, notifier.kinds())
	assert.Equal(t, monitor.StatusFound, notifier.events[0].Status)
	assert.Len(t, notifier.events[0].Items, 1)
	assert.Equal(t, 12, load(t, dir).ExecutionCount)
}

func TestTrialNoNotificationBetweenReports(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	seed(t, dir, monitor.RunState{LastStatus: monitor.StatusNotFound, ExecutionCount: 1})

	fetcher := &mockFetcher{}
	fetcher.On("Fetch", mock.Anything, newsURL).Return(quietListing, nil).Once()
	notifier := &recordingNotifier{deliver: true}

	runTrial(t, dir, fetcher, notifier)
	assert.Empty(t, notifier.kinds())
	assert.Equal(t, 2, load(t, dir).ExecutionCount)
}

func TestTrialFailedSourceIsPartialFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	seed(t, dir, monitor.RunState{LastStatus: monitor.StatusNotFound, ExecutionCount: 2})

	fetcher := &mockFetcher{}
	fetcher.On("Fetch", mock.Anything, searchURL).Return(monitor.Page{}, errors.New("connection refused")).Once()
	fetcher.On("Fetch", mock.Anything, newsURL).Return(quietListing, nil).Once()
	notifier := &recordingNotifier{deliver: true}

	res := runTrial(t, dir, fetcher, notifier, searchURL, newsURL)

	assert.Empty(t, notifier.kinds())
	assert.Equal(t, monitor.StatusNotFound, res.Status)
	assert.Equal(t, 3, load(t, dir).ExecutionCount)
	fetcher.AssertExpectations(t)
}

func TestTrialUndeliveredReportIsRetriedLater(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fetcher := &mockFetcher{}
	fetcher.On("Fetch", mock.Anything, newsURL).Return(quietListing, nil).Once()
	notifier := &recordingNotifier{deliver: false}

	res := runTrial(t, dir, fetcher, notifier)

	assert.Equal(t, []monitor.EventKind{monitor.EventPeriodicReport}, notifier.kinds())
	assert.Empty(t, res.Sent)
	assert.False(t, load(t, dir).HasReportDate())
}

func TestTrialUndeliveredDiscoveryIsRetriedNextRun(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	seed(t, dir, monitor.RunState{LastStatus: monitor.StatusNotFound, ExecutionCount: 5})
	found := listing("CBP501 Phase III trial start announced")

	fetcher := &mockFetcher{}
	fetcher.On("Fetch", mock.Anything, newsURL).Return(found, nil).Twice()

	failing := &recordingNotifier{deliver: false}
	res := runTrial(t, dir, fetcher, failing)
	assert.Equal(t, []monitor.EventKind{monitor.EventDiscovery}, failing.kinds())
	assert.Empty(t, res.Sent)
	assert.Equal(t, monitor.StatusNotFound, load(t, dir).LastStatus)

	delivering := &recordingNotifier{deliver: true}
	res = runTrial(t, dir, fetcher, delivering)
	assert.Equal(t, []monitor.EventKind{monitor.EventDiscovery}, delivering.kinds())
	assert.Equal(t, []monitor.EventKind{monitor.EventDiscovery}, res.Sent)

	st := load(t, dir)
	assert.Equal(t, monitor.StatusFound, st.LastStatus)
	assert.Equal(t, 7, st.ExecutionCount)
	fetcher.AssertExpectations(t)
}

func TestTrialFindsAnnouncementInBodyTextOfBusyListing(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	seed(t, dir, monitor.RunState{LastStatus: monitor.StatusNotFound, ExecutionCount: 2})

	page := listing(
		"Agency publishes annual report",
		"Meeting highlights from the committee",
		"New guidance on medicine shortages",
		"Public consultation opens on fees",
		"Board elects new chair for term",
	)
	page.Body = []byte(strings.Replace(string(page.Body), "</body>",
		"<p>Sponsor update: CBP501 Phase III trial has started enrolling patients.</p></body>", 1))

	fetcher := &mockFetcher{}
	fetcher.On("Fetch", mock.Anything, newsURL).Return(page, nil).Once()
	notifier := &recordingNotifier{deliver: true}

	deps := newDeps(t, dir, fetcher, notifier)
	deps.Extractor = extract.New(extract.WithSupplementary(extract.TextBlocks{}))
	runner, err := NewTrial(TrialConfig{Sources: []string{newsURL}}, nil, deps)
	require.NoError(t, err)

	res, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, monitor.StatusFound, res.Status)
	assert.Equal(t, []monitor.EventKind{monitor.EventDiscovery}, notifier.kinds())
	require.Len(t, res.Items, 1)
	assert.Equal(t, extract.TagTextBlock, res.Items[0].Strategy)
	assert.Equal(t, monitor.StatusFound, load(t, dir).LastStatus)
}

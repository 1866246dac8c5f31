package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/climb-tre/onyx-analysis-cli/internal/resilience"
	"github.com/climb-tre/onyx-analysis-cli/pkg/onyx"
)

// MockClient implements onyx.Client for testing.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) CreateAnalysis(ctx context.Context, project string, fields map[string]any, test bool) (map[string]any, error) {
	args := m.Called(ctx, project, fields, test)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]any), args.Error(1)
}

func (m *MockClient) GetAnalysis(ctx context.Context, project, analysisID string) (map[string]any, error) {
	args := m.Called(ctx, project, analysisID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]any), args.Error(1)
}

// testPolicy returns a retry policy with a negligible delay and a pause
// counter so tests can assert how often the call slept between attempts.
func testPolicy(pauses *int) resilience.Policy {
	return resilience.Policy{
		MaxAttempts: 3,
		Delay:       time.Millisecond,
		OnRetry:     func(int, error) { *pauses++ },
	}
}

func TestWriteRemoteSuccess(t *testing.T) {
	observedLogs(t)

	mc := new(MockClient)
	mc.On("CreateAnalysis", mock.Anything, "mscape", mock.Anything, false).
		Return(map[string]any{"analysis_id": "A-123"}, nil).Once()

	rec := New()
	rec.applyFields(completeFields())

	var pauses int
	rec.SetRetryPolicy(testPolicy(&pauses))

	result, exitcode := rec.WriteRemote(context.Background(), mc, ServerMscape, false)
	assert.Equal(t, ExitOK, exitcode)
	assert.Equal(t, map[string]any{"analysis_id": "A-123"}, result)
	assert.Zero(t, pauses)
	mc.AssertExpectations(t)
}

func TestWriteRemoteDryRun(t *testing.T) {
	observedLogs(t)

	mc := new(MockClient)
	mc.On("CreateAnalysis", mock.Anything, "synthscape", mock.Anything, true).
		Return(map[string]any{}, nil).Once()

	rec := New()
	rec.applyFields(completeFields())

	var pauses int
	rec.SetRetryPolicy(testPolicy(&pauses))

	result, exitcode := rec.WriteRemote(context.Background(), mc, ServerSynthscape, true)
	assert.Equal(t, ExitOK, exitcode)
	assert.Empty(t, result)
	mc.AssertExpectations(t)
}

func TestWriteRemoteRetriesConnectionFailure(t *testing.T) {
	observedLogs(t)

	mc := new(MockClient)
	mc.On("CreateAnalysis", mock.Anything, "mscape", mock.Anything, false).
		Return(nil, &onyx.ConnectionError{Err: errors.New("connection reset")}).Twice()
	mc.On("CreateAnalysis", mock.Anything, "mscape", mock.Anything, false).
		Return(map[string]any{"analysis_id": "A-123"}, nil).Once()

	rec := New()
	rec.applyFields(completeFields())

	var pauses int
	rec.SetRetryPolicy(testPolicy(&pauses))

	result, exitcode := rec.WriteRemote(context.Background(), mc, ServerMscape, false)
	assert.Equal(t, ExitOK, exitcode)
	assert.Equal(t, map[string]any{"analysis_id": "A-123"}, result)
	assert.Equal(t, 2, pauses)
	mc.AssertExpectations(t)
}

func TestWriteRemoteExhaustsRetries(t *testing.T) {
	logs := observedLogs(t)

	mc := new(MockClient)
	mc.On("CreateAnalysis", mock.Anything, "mscape", mock.Anything, false).
		Return(nil, &onyx.ConnectionError{Err: errors.New("connection reset")}).Times(3)

	rec := New()
	rec.applyFields(completeFields())

	var pauses int
	rec.SetRetryPolicy(testPolicy(&pauses))

	result, exitcode := rec.WriteRemote(context.Background(), mc, ServerMscape, false)
	assert.Equal(t, ExitFail, exitcode)
	assert.Nil(t, result)
	assert.Equal(t, 2, pauses)
	assert.Equal(t, 1, logs.FilterMessage("onyx connection failed, retries exhausted").Len())
	mc.AssertExpectations(t)
}

func TestWriteRemoteConfigErrorNoRetry(t *testing.T) {
	logs := observedLogs(t)

	mc := new(MockClient)
	mc.On("CreateAnalysis", mock.Anything, "mscape", mock.Anything, false).
		Return(nil, &onyx.ConfigError{Reason: "token is not set"}).Once()

	rec := New()
	rec.applyFields(completeFields())

	var pauses int
	rec.SetRetryPolicy(testPolicy(&pauses))

	result, exitcode := rec.WriteRemote(context.Background(), mc, ServerMscape, false)
	assert.Equal(t, ExitFail, exitcode)
	assert.Nil(t, result)
	assert.Zero(t, pauses)
	assert.Equal(t, 1, logs.FilterMessage("onyx config error, check domain and token credentials").Len())
	mc.AssertExpectations(t)
}

func TestWriteRemoteClientErrorNoRetry(t *testing.T) {
	logs := observedLogs(t)

	mc := new(MockClient)
	mc.On("CreateAnalysis", mock.Anything, "mscape", mock.Anything, false).
		Return(nil, &onyx.ClientError{Reason: "create analysis requires a project"}).Once()

	rec := New()
	rec.applyFields(completeFields())

	var pauses int
	rec.SetRetryPolicy(testPolicy(&pauses))

	_, exitcode := rec.WriteRemote(context.Background(), mc, ServerMscape, false)
	assert.Equal(t, ExitFail, exitcode)
	assert.Zero(t, pauses)
	assert.Equal(t, 1, logs.FilterMessage("onyx client error, check call arguments").Len())
	mc.AssertExpectations(t)
}

func TestWriteRemoteHTTPErrorLogsBody(t *testing.T) {
	logs := observedLogs(t)

	mc := new(MockClient)
	mc.On("CreateAnalysis", mock.Anything, "mscape", mock.Anything, false).
		Return(nil, &onyx.HTTPError{
			StatusCode: 400,
			Body:       map[string]any{"detail": "bad field"},
		}).Once()

	rec := New()
	rec.applyFields(completeFields())

	var pauses int
	rec.SetRetryPolicy(testPolicy(&pauses))

	_, exitcode := rec.WriteRemote(context.Background(), mc, ServerMscape, false)
	assert.Equal(t, ExitFail, exitcode)
	assert.Zero(t, pauses)

	entries := logs.FilterMessage("onyx returned an error response").All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, int64(400), ctx["status"])
	assert.Equal(t, map[string]any{"detail": "bad field"}, ctx["body"])
	mc.AssertExpectations(t)
}

func TestWriteRemoteUnclassifiedError(t *testing.T) {
	logs := observedLogs(t)

	mc := new(MockClient)
	mc.On("CreateAnalysis", mock.Anything, "mscape", mock.Anything, false).
		Return(nil, errors.New("something odd")).Once()

	rec := New()
	rec.applyFields(completeFields())

	var pauses int
	rec.SetRetryPolicy(testPolicy(&pauses))

	_, exitcode := rec.WriteRemote(context.Background(), mc, ServerMscape, false)
	assert.Equal(t, ExitFail, exitcode)
	assert.Zero(t, pauses)
	assert.Equal(t, 1, logs.FilterMessage("unhandled onyx error").Len())
	mc.AssertExpectations(t)
}

func TestWriteRemoteValidatesBeforeSubmitting(t *testing.T) {
	logs := observedLogs(t)

	mc := new(MockClient)
	mc.On("CreateAnalysis", mock.Anything, "mscape", mock.Anything, false).
		Return(map[string]any{}, nil).Once()

	// Incomplete record: validation logs but the submission proceeds.
	rec := New()
	var pauses int
	rec.SetRetryPolicy(testPolicy(&pauses))

	_, exitcode := rec.WriteRemote(context.Background(), mc, ServerMscape, false)
	assert.Equal(t, ExitOK, exitcode)
	assert.NotZero(t, logs.FilterMessage("missing required fields").Len())
	mc.AssertExpectations(t)
}

func TestReadRemoteSuccessAppliesFields(t *testing.T) {
	observedLogs(t)

	fetched := completeFields()
	mc := new(MockClient)
	mc.On("GetAnalysis", mock.Anything, "synthscape", "A-123").
		Return(fetched, nil).Once()

	rec := New()
	var pauses int
	rec.SetRetryPolicy(testPolicy(&pauses))

	result, exitcode := rec.ReadRemote(context.Background(), mc, "A-123", ServerSynthscape)
	assert.Equal(t, ExitOK, exitcode)
	assert.Equal(t, fetched, result)
	assert.Equal(t, completeFields(), rec.Fields())
	mc.AssertExpectations(t)
}

func TestReadRemoteFiltersUnknownFields(t *testing.T) {
	logs := observedLogs(t)

	fetched := completeFields()
	fetched["invalid_field"] = "dropped"
	mc := new(MockClient)
	mc.On("GetAnalysis", mock.Anything, "mscape", "A-123").
		Return(fetched, nil).Once()

	rec := New()
	var pauses int
	rec.SetRetryPolicy(testPolicy(&pauses))

	// The raw fetched mapping comes back unfiltered; only the record's own
	// fields pass the allow-list.
	result, exitcode := rec.ReadRemote(context.Background(), mc, "A-123", ServerMscape)
	assert.Equal(t, ExitOK, exitcode)
	assert.Contains(t, result, "invalid_field")

	_, ok := rec.Field("invalid_field")
	assert.False(t, ok)
	assert.Equal(t, 1, logs.FilterMessage("invalid attribute in onyx analysis").Len())
	mc.AssertExpectations(t)
}

func TestReadRemoteFailureLeavesRecordUntouched(t *testing.T) {
	observedLogs(t)

	mc := new(MockClient)
	mc.On("GetAnalysis", mock.Anything, "mscape", "A-404").
		Return(nil, &onyx.HTTPError{StatusCode: 404}).Once()

	rec := New()
	var pauses int
	rec.SetRetryPolicy(testPolicy(&pauses))

	before := rec.Fields()
	result, exitcode := rec.ReadRemote(context.Background(), mc, "A-404", ServerMscape)
	assert.Equal(t, ExitFail, exitcode)
	assert.Nil(t, result)
	assert.Equal(t, before, rec.Fields())
	mc.AssertExpectations(t)
}

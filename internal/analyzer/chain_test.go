package analyzer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentsight/agentsight/internal/eventmodel"
	"github.com/agentsight/agentsight/internal/metrics"
)

func TestChain_PassesThroughMultipleStages(t *testing.T) {
	double := Func{FuncName: "double", Fn: func(_ context.Context, ev eventmodel.Event) ([]eventmodel.Event, error) {
		return []eventmodel.Event{ev, ev}, nil
	}}
	chain := NewChain(nil, double, double)

	ev, err := eventmodel.New(eventmodel.SourceSSL, 1, "x", eventmodel.SSLPayload{})
	require.NoError(t, err)

	out := chain.Process(context.Background(), ev)
	assert.Len(t, out, 4)
}

func TestChain_DropStopsPropagationForThatEventOnly(t *testing.T) {
	dropAll := Func{FuncName: "drop", Fn: func(_ context.Context, ev eventmodel.Event) ([]eventmodel.Event, error) {
		return nil, nil
	}}
	chain := NewChain(nil, dropAll)

	ev, _ := eventmodel.New(eventmodel.SourceSSL, 1, "x", eventmodel.SSLPayload{})
	assert.Nil(t, chain.Process(context.Background(), ev))
}

func TestChain_StageErrorDropsEventWithoutAbortingChain(t *testing.T) {
	failing := Func{FuncName: "fail", Fn: func(_ context.Context, ev eventmodel.Event) ([]eventmodel.Event, error) {
		return nil, errors.New("boom")
	}}
	chain := NewChain(nil, failing)

	ev, _ := eventmodel.New(eventmodel.SourceSSL, 1, "x", eventmodel.SSLPayload{})
	assert.NotPanics(t, func() { chain.Process(context.Background(), ev) })
}

func TestSSLFilter_DropsMatchingEvents(t *testing.T) {
	reg := metrics.NewUnregistered()
	f := NewSSLFilter("function=WRITE/SEND", reg)

	writeEv, _ := eventmodel.New(eventmodel.SourceSSL, 1, "x", eventmodel.SSLPayload{Function: eventmodel.SSLFunctionWrite})
	out, err := f.Analyze(context.Background(), writeEv)
	require.NoError(t, err)
	assert.Nil(t, out, "a matching filter expression drops the event")

	readEv, _ := eventmodel.New(eventmodel.SourceSSL, 1, "x", eventmodel.SSLPayload{Function: eventmodel.SSLFunctionRead})
	out, err = f.Analyze(context.Background(), readEv)
	require.NoError(t, err)
	assert.Len(t, out, 1, "a non-matching event passes through")
}

func TestSSLFilter_IgnoresNonSSLEvents(t *testing.T) {
	f := NewSSLFilter("function=WRITE/SEND", nil)
	ev, _ := eventmodel.New(eventmodel.SourceProcess, 1, "x", eventmodel.ProcessPayload{Event: eventmodel.ProcessEventExec})
	out, err := f.Analyze(context.Background(), ev)
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestHTTPFilter_PathPrefixMatchesRequestOnly(t *testing.T) {
	f := NewHTTPFilter("request.path_prefix=/v1/health", nil)

	req, _ := eventmodel.New(eventmodel.SourceHTTPParser, 1, "x", eventmodel.HTTPMessage{
		MessageType: eventmodel.HTTPMessageRequest,
		Path:        "/v1/health/live",
	})
	out, err := f.Analyze(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, out, "matching prefix on a request should drop per the filter semantics under test")

	resp, _ := eventmodel.New(eventmodel.SourceHTTPParser, 1, "x", eventmodel.HTTPMessage{
		MessageType: eventmodel.HTTPMessageResponse,
		StatusCode:  200,
	})
	out, err = f.Analyze(context.Background(), resp)
	require.NoError(t, err)
	assert.Len(t, out, 1, "a request-only condition must never match a response event, so it passes through")
}

func TestHTTPFilter_StatusCodeOnResponseSide(t *testing.T) {
	f := NewHTTPFilter("response.status_code=404", nil)

	resp, _ := eventmodel.New(eventmodel.SourceHTTPParser, 1, "x", eventmodel.HTTPMessage{
		MessageType: eventmodel.HTTPMessageResponse,
		StatusCode:  404,
	})
	out, err := f.Analyze(context.Background(), resp)
	require.NoError(t, err)
	assert.Nil(t, out, "a matching response-side condition drops the event")
}

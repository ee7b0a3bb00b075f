package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

func TestPublishCompletion(t *testing.T) {
	t.Parallel()

	var sent *pubsub.Message
	pub := &Publisher{send: func(_ context.Context, msg *pubsub.Message) (string, error) {
		sent = msg
		return "msg-1", nil
	}}
	completion := crawler.Completion{
		JobID: "job-1", StartURL: "https://example.com", Status: crawler.JobStatusSucceeded,
		ReportURI: "gs://b/reports/job-1/x.json", Pages: 3, Finished: time.Unix(10, 0).UTC(),
	}

	id, err := pub.Publish(context.Background(), "ignored", completion)
	require.NoError(t, err)
	require.Equal(t, "msg-1", id)
	require.Equal(t, "job-1", sent.Attributes["job_id"])
	require.Equal(t, "succeeded", sent.Attributes["status"])

	var decoded crawler.Completion
	require.NoError(t, json.Unmarshal(sent.Data, &decoded))
	require.Equal(t, completion, decoded)
}

func TestPublishErrors(t *testing.T) {
	t.Parallel()

	_, err := (&Publisher{}).Publish(context.Background(), "", crawler.Completion{})
	require.ErrorContains(t, err, "not configured")

	pub := &Publisher{send: func(context.Context, *pubsub.Message) (string, error) {
		return "", errors.New("topic not found")
	}}
	_, err = pub.Publish(context.Background(), "", map[string]string{"k": "v"})
	require.ErrorContains(t, err, "topic not found")

	_, err = pub.Publish(context.Background(), "", make(chan int))
	require.ErrorContains(t, err, "marshal payload")
	require.NoError(t, pub.Close())
}

func TestCarrierRoundTrip(t *testing.T) {
	t.Parallel()

	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled,
	}))

	c := &carrier{attrs: map[string]string{}}
	propagation.TraceContext{}.Inject(ctx, c)
	require.Contains(t, c.Keys(), "traceparent")

	extracted := trace.SpanContextFromContext(propagation.TraceContext{}.Extract(context.Background(), c))
	require.Equal(t, traceID, extracted.TraceID())
}

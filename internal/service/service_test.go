package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"study-pipeline-be/internal/dto"
	"study-pipeline-be/internal/metrics"
	"study-pipeline-be/internal/pkg/logger"
	"study-pipeline-be/internal/repository/memory"
	"study-pipeline-be/pkg/events"
	"study-pipeline-be/pkg/extraction"
	"study-pipeline-be/pkg/generator"
	"study-pipeline-be/pkg/llm/llmtest"
	"study-pipeline-be/pkg/optimizer"
	"study-pipeline-be/pkg/relay"
	"study-pipeline-be/pkg/store"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/require"
)

const testTopic = "note-jobs"

type harness struct {
	provider   *llmtest.Provider
	sessions   *memory.SessionRepository
	jobs       *memory.JobRepository
	recorder   *events.Recorder
	notifier   *recordingNotifier
	metrics    *metrics.Collector
	pubSub     *gochannel.GoChannel
	pipeline   IPipelineService
	jobService IJobService
	consumer   *consumerService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := logger.NewNopLogger()
	h := &harness{
		provider: llmtest.New(),
		sessions: memory.NewSessionRepository(),
		jobs:     memory.NewJobRepository(),
		recorder: &events.Recorder{},
		notifier: &recordingNotifier{},
		metrics:  metrics.NewCollector("test"),
		pubSub:   gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{}),
	}
	t.Cleanup(func() { _ = h.pubSub.Close() })

	optCfg := optimizer.DefaultConfig()
	optCfg.Offline = true
	opt := optimizer.New(h.provider, optCfg, optimizer.DefaultPriceTable(), log)
	registry := generator.NewRegistry(h.provider, generator.DefaultConfig(), log, nil)
	publisher := events.NewPipelinePublisher(h.recorder, log)

	h.pipeline = NewPipelineService(h.sessions, extraction.NewService(log), opt, registry,
		relay.New(h.provider, time.Minute, log), publisher, h.metrics, log)
	h.jobService = NewJobService(h.sessions, h.jobs, NewPublisherService(testTopic, h.pubSub),
		publisher, h.notifier, h.metrics, log)
	h.consumer = NewConsumerService(h.pubSub, testTopic, h.sessions, h.jobs, h.pipeline,
		publisher, h.notifier, h.metrics, log, time.Minute, 4).(*consumerService)
	return h
}

// session creates a session holding one ready text source.
func (h *harness) session(t *testing.T, text string) (string, store.Source) {
	t.Helper()
	ctx := context.Background()
	created, err := h.pipeline.CreateSession(ctx)
	require.NoError(t, err)

	res, err := h.pipeline.AddSources(ctx, created.SessionId, []extraction.File{
		{Name: "lecture.txt", MimeType: "text/plain", Data: []byte(text)},
	}, nil)
	require.NoError(t, err)
	require.Len(t, res.Sources, 1)
	require.Equal(t, store.SourceStatusReady, res.Sources[0].Status)
	return created.SessionId, res.Sources[0]
}

type recordingNotifier struct {
	mu   sync.Mutex
	jobs []store.GenerationJob
}

func (n *recordingNotifier) NotifyJob(job store.GenerationJob) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.jobs = append(n.jobs, job)
}

func (n *recordingNotifier) snapshots(jobID string) []store.GenerationJob {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []store.GenerationJob
	for _, j := range n.jobs {
		if j.ID == jobID {
			out = append(out, j)
		}
	}
	return out
}

func prose(n int) string {
	const sentence = "Cells divide through mitosis, producing two identical daughter cells with the same chromosomes. "
	return strings.Repeat(sentence, n/len(sentence)+1)[:n]
}

func collect(t *testing.T, ch <-chan relay.Event) []relay.Event {
	t.Helper()
	var evts []relay.Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return evts
			}
			evts = append(evts, e)
		case <-timeout:
			t.Fatal("stream did not close")
			return evts
		}
	}
}

func generateReq(sourceID, kind, settings string) *dto.GenerateRequest {
	req := &dto.GenerateRequest{SourceId: sourceID, Kind: kind}
	if settings != "" {
		req.Settings = []byte(settings)
	}
	return req
}

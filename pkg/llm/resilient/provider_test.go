package resilient

import (
	"context"
	"errors"
	"testing"
	"time"

	"study-pipeline-be/pkg/apperror"
	"study-pipeline-be/pkg/llm"
	"study-pipeline-be/pkg/llm/llmtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 2 * time.Millisecond
	return cfg
}

func TestRetriesTransientFailureOnce(t *testing.T) {
	fake := llmtest.New()
	fake.EnqueueError(&llm.StatusError{Provider: "fake", StatusCode: 503})
	fake.Enqueue("recovered")

	p := New(fake, testConfig())
	reply, err := p.Generate(context.Background(), "hi")

	require.NoError(t, err)
	assert.Equal(t, "recovered", reply)
	assert.Equal(t, 2, fake.CallCount())
}

func TestGivesUpAfterRetryBudget(t *testing.T) {
	fake := llmtest.New()
	for i := 0; i < 3; i++ {
		fake.EnqueueError(llm.ConnectionError(errors.New("refused")))
	}

	p := New(fake, testConfig())
	_, err := p.Generate(context.Background(), "hi")

	assert.True(t, apperror.Is(err, apperror.CodeUpstream))
	assert.Equal(t, 2, fake.CallCount())
}

func TestPermanentFailureIsNotRetried(t *testing.T) {
	fake := llmtest.New()
	fake.EnqueueError(&llm.StatusError{Provider: "fake", StatusCode: 400})

	p := New(fake, testConfig())
	_, err := p.Generate(context.Background(), "hi")

	assert.True(t, apperror.Is(err, apperror.CodeUpstream))
	assert.Equal(t, 1, fake.CallCount())
}

func TestTimeoutIsReportedAsTimeout(t *testing.T) {
	fake := &llmtest.Provider{
		ChatFunc: func(ctx context.Context, _ []llm.Message, _ llm.Options) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	cfg := testConfig()
	cfg.CallTimeout = 20 * time.Millisecond

	_, err := New(fake, cfg).Generate(context.Background(), "slow")

	assert.True(t, apperror.Is(err, apperror.CodeTimeout))
	assert.Equal(t, 1, fake.CallCount())
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	fake := &llmtest.Provider{
		ChatFunc: func(context.Context, []llm.Message, llm.Options) (string, error) {
			return "", &llm.StatusError{Provider: "fake", StatusCode: 500}
		},
	}
	cfg := testConfig()
	cfg.MaxRetries = 0
	cfg.MinRequests = 3
	p := New(fake, cfg)

	for i := 0; i < 3; i++ {
		_, err := p.Generate(context.Background(), "hi")
		require.Error(t, err)
	}

	_, err := p.Generate(context.Background(), "hi")
	assert.True(t, apperror.Is(err, apperror.CodeUpstream))
	assert.Contains(t, apperror.MessageOf(err), "circuit open")
	assert.Equal(t, 3, fake.CallCount())
}

func TestChatStreamOpenFailureIsUpstream(t *testing.T) {
	fake := &llmtest.Provider{OpenErr: &llm.StatusError{Provider: "fake", StatusCode: 401}}

	_, err := New(fake, testConfig()).ChatStream(context.Background(), nil)
	assert.True(t, apperror.Is(err, apperror.CodeUpstream))
}

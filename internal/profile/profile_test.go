package profile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileDefaults(t *testing.T) {
	p := &Profile{}
	p.FromEnv()

	assert.Equal(t, 200, p.HistoryCacheCap)
	assert.Equal(t, 10*time.Minute, p.HistoryCacheTTL)
	assert.Equal(t, 10*time.Minute, p.ListCacheTTL)
	assert.Equal(t, "https://api.openai.com/v1", p.OpenAIBaseURL)
	assert.Equal(t, "gpt-4o-mini", p.OpenAIModel)
	assert.Equal(t, 60*time.Second, p.GeneratorTimeout)
	assert.Equal(t, 10*time.Millisecond, p.StreamWordDelay)
}

func TestProfileFromEnv(t *testing.T) {
	t.Setenv("CONVOFLOW_HISTORY_CACHE_CAP", "50")
	t.Setenv("CONVOFLOW_HISTORY_CACHE_TTL", "5m")
	t.Setenv("CONVOFLOW_STREAM_WORD_DELAY", "0s")
	t.Setenv("CONVOFLOW_SECRET", "s3cret")

	p := &Profile{}
	p.FromEnv()

	assert.Equal(t, 50, p.HistoryCacheCap)
	assert.Equal(t, 5*time.Minute, p.HistoryCacheTTL)
	assert.Equal(t, time.Duration(0), p.StreamWordDelay)
	assert.Equal(t, "s3cret", p.Secret)
}

func TestProfileValidate(t *testing.T) {
	t.Run("DefaultsToSQLite", func(t *testing.T) {
		p := &Profile{Mode: "dev"}
		require.NoError(t, p.Validate())
		assert.Equal(t, "sqlite", p.Driver)
		assert.Equal(t, "convoflow_dev.db", p.DSN)
		assert.NotEmpty(t, p.Secret)
	})

	t.Run("PostgresRequiresDSN", func(t *testing.T) {
		p := &Profile{Mode: "dev", Driver: "postgres"}
		require.Error(t, p.Validate())
	})

	t.Run("ProdRequiresSecret", func(t *testing.T) {
		p := &Profile{Mode: "prod", Driver: "sqlite", DSN: "x.db"}
		require.Error(t, p.Validate())

		p.Secret = "s3cret"
		require.NoError(t, p.Validate())
	})
}

package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCrawlRunFinish(t *testing.T) {
	run := &CrawlRun{Status: CrawlRunStatusRunning, StartedAt: time.Now()}
	run.Finish("")

	assert.Equal(t, CrawlRunStatusCompleted, run.Status)
	assert.NotNil(t, run.FinishedAt)
	assert.Empty(t, run.LastError)
}

func TestCrawlRunFinishWithError(t *testing.T) {
	run := &CrawlRun{Status: CrawlRunStatusRunning, StartedAt: time.Now()}
	run.Finish("timeout on page 4")

	assert.Equal(t, CrawlRunStatusFailed, run.Status)
	assert.Equal(t, "timeout on page 4", run.LastError)
}

func TestCrawlRunAbort(t *testing.T) {
	run := &CrawlRun{Status: CrawlRunStatusRunning, StartedAt: time.Now()}
	run.Abort("circuit breaker open")

	assert.Equal(t, CrawlRunStatusAborted, run.Status)
	assert.Equal(t, "circuit breaker open", run.LastError)
	assert.NotNil(t, run.FinishedAt)
}

func TestCrawlStateBlocking(t *testing.T) {
	state := &CrawlState{}
	assert.True(t, state.CanCrawl())

	state.SetBlocked("bot detection suspected", time.Hour)
	assert.False(t, state.CanCrawl())
	assert.Equal(t, "bot detection suspected", state.BlockedReason)

	state.ClearBlock()
	assert.True(t, state.CanCrawl())
	assert.Nil(t, state.BlockedUntil)
}

func TestCrawlStateBlockExpires(t *testing.T) {
	state := &CrawlState{}
	state.SetBlocked("cooldown", -time.Minute)

	assert.True(t, state.CanCrawl())
}

func TestCrawlStateRecordSuccessClearsBlock(t *testing.T) {
	state := &CrawlState{FailureCount: 3}
	state.SetBlocked("blocked", time.Hour)

	state.RecordSuccess()

	assert.True(t, state.CanCrawl())
	assert.Equal(t, 0, state.FailureCount)
	assert.Equal(t, 1, state.SuccessCount)
	assert.NotNil(t, state.LastSuccess)
}

func TestGetNextRetryDelay(t *testing.T) {
	assert.Equal(t, 2*time.Minute, GetNextRetryDelay(0))
	assert.Equal(t, 10*time.Minute, GetNextRetryDelay(1))
	assert.Equal(t, 30*time.Minute, GetNextRetryDelay(2))
	assert.Equal(t, 2*time.Hour, GetNextRetryDelay(3))
	assert.Equal(t, 6*time.Hour, GetNextRetryDelay(4))
	// past the table, the longest delay applies
	assert.Equal(t, 6*time.Hour, GetNextRetryDelay(9))
}

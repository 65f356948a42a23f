package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRulesTable(t *testing.T) {
	rules := DefaultRules()
	require.Len(t, rules, len(AllOperations()))

	tests := []struct {
		op        Operation
		requests  int
		window    time.Duration
		algorithm Algorithm
	}{
		{OpAPIGeneral, 100, 60 * time.Second, AlgorithmSliding},
		{OpPollsCreate, 5, 300 * time.Second, AlgorithmFixed},
		{OpPollsVote, 10, 60 * time.Second, AlgorithmSliding},
		{OpPollsView, 50, 60 * time.Second, AlgorithmSliding},
		{OpAuthLogin, 5, 300 * time.Second, AlgorithmFixed},
		{OpAuthRegister, 3, 3600 * time.Second, AlgorithmFixed},
		{OpUploadAvatar, 3, 300 * time.Second, AlgorithmFixed},
		{OpAnalyticsView, 100, 300 * time.Second, AlgorithmSliding},
		{OpAdminDashboard, 50, 60 * time.Second, AlgorithmFixed},
		{OpAdminReset, 10, 300 * time.Second, AlgorithmFixed},
	}
	for _, tt := range tests {
		rule := rules[tt.op]
		assert.Equal(t, tt.op, rule.Key)
		assert.Equal(t, tt.requests, rule.Requests, string(tt.op))
		assert.Equal(t, tt.window, rule.Window, string(tt.op))
		assert.Equal(t, tt.algorithm, rule.Algorithm, string(tt.op))
		assert.NoError(t, rule.Validate())
	}
}

func TestParseOperation(t *testing.T) {
	op, err := ParseOperation("polls:create")
	require.NoError(t, err)
	assert.Equal(t, OpPollsCreate, op)

	_, err = ParseOperation("polls:destroy")
	assert.Error(t, err)
}

func TestExceededMessages(t *testing.T) {
	rule := Rule{Key: OpPollsCreate, Requests: 5, Window: 300 * time.Second, Algorithm: AlgorithmFixed}
	assert.Equal(t, "Rate limit exceeded. Max 5 requests per 300 seconds.", rule.ExceededMessage())

	rule.Message = "custom text"
	assert.Equal(t, "custom text", rule.ExceededMessage())

	assert.Equal(t, "Burst limit exceeded. Max 50 requests in 10 seconds.",
		BurstExceededMessage(50, 10*time.Second))
}

func TestRuleValidate(t *testing.T) {
	assert.Error(t, Rule{Key: OpPollsVote, Requests: 0, Window: time.Minute, Algorithm: AlgorithmSliding}.Validate())
	assert.Error(t, Rule{Key: OpPollsVote, Requests: 1, Window: time.Millisecond, Algorithm: AlgorithmSliding}.Validate())
	assert.Error(t, Rule{Key: OpPollsVote, Requests: 1, Window: time.Minute, Algorithm: "token"}.Validate())
}

func TestVerdictRetryAfter(t *testing.T) {
	now := time.Now()
	v := Verdict{ResetTime: now.Add(90 * time.Second)}
	assert.Equal(t, 90, v.RetryAfter(now))

	// Already past reset still tells the client to back off briefly.
	v = Verdict{ResetTime: now.Add(-time.Second)}
	assert.Equal(t, 1, v.RetryAfter(now))
}

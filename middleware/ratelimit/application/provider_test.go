package application

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accessrl/middleware/ratelimit/domain"
)

func TestPolicyProvider_PublishDefaultsCostAndResolver(t *testing.T) {
	p := NewPolicyProvider(nil)

	err := p.Publish(map[string]*domain.Policy{
		"default": {Limit: 10, Window: time.Minute, Enabled: true},
	}, "default")
	require.NoError(t, err)

	got := p.GetPolicy("default")
	require.NotNil(t, got)
	assert.Equal(t, int64(1), got.Cost)
	assert.NotNil(t, got.Resolver)
}

func TestPolicyProvider_PublishMaterializesPerPeriodLimit(t *testing.T) {
	p := NewPolicyProvider(nil)
	require.NoError(t, p.Publish(map[string]*domain.Policy{
		"downloads": {LimitPerMinute: 30, Enabled: true},
	}, "downloads"))

	got := p.GetPolicy("downloads")
	require.NotNil(t, got)
	assert.Equal(t, int64(30), got.Limit)
	assert.Equal(t, time.Minute, got.Window)
}

func TestPolicyProvider_PublishPrefersExplicitLimitOverPerPeriod(t *testing.T) {
	p := NewPolicyProvider(nil)
	require.NoError(t, p.Publish(map[string]*domain.Policy{
		"mixed": {Limit: 5, Window: 10 * time.Second, LimitPerHour: 1000, Enabled: true},
	}, "mixed"))

	got := p.GetPolicy("mixed")
	require.NotNil(t, got)
	assert.Equal(t, int64(5), got.Limit)
	assert.Equal(t, 10*time.Second, got.Window)
}

func TestPolicyProvider_GetPolicyIsCaseInsensitive(t *testing.T) {
	p := NewPolicyProvider(nil)
	require.NoError(t, p.Publish(map[string]*domain.Policy{
		"Default": {Limit: 10, Window: time.Minute, Enabled: true},
	}, "Default"))

	assert.NotNil(t, p.GetPolicy("default"))
	assert.NotNil(t, p.GetPolicy("DEFAULT"))
	assert.NotNil(t, p.GetDefault())
}

func TestPolicyProvider_PublishRejectsInvalidPolicyAndKeepsPreviousSnapshot(t *testing.T) {
	p := NewPolicyProvider(nil)
	require.NoError(t, p.Publish(map[string]*domain.Policy{
		"default": {Limit: 10, Window: time.Minute, Enabled: true},
	}, "default"))
	firstVersion := p.Snapshot().Version

	err := p.Publish(map[string]*domain.Policy{
		"default": {Limit: 0, Window: time.Minute, Enabled: true},
	}, "default")
	require.Error(t, err)

	var cfgErr *domain.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "Limit", cfgErr.Field)

	assert.Equal(t, firstVersion, p.Snapshot().Version, "a failed publish must not replace the snapshot")
}

func TestPolicyProvider_PublishRejectsUnknownResolverSpec(t *testing.T) {
	p := NewPolicyProvider(nil)
	err := p.Publish(map[string]*domain.Policy{
		"default": {Limit: 10, Window: time.Minute, Enabled: true, ResolverSpecs: []string{"does-not-exist"}},
	}, "default")

	require.Error(t, err)
	var cfgErr *domain.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "KeyResolvers", cfgErr.Field)
}

func TestPolicyProvider_UnknownNameReturnsNilNotError(t *testing.T) {
	p := NewPolicyProvider(nil)
	require.NoError(t, p.Publish(map[string]*domain.Policy{
		"default": {Limit: 10, Window: time.Minute, Enabled: true},
	}, "default"))

	assert.Nil(t, p.GetPolicy("nope"))
}

func TestPolicyProvider_VersionIncrementsOnEveryPublish(t *testing.T) {
	p := NewPolicyProvider(nil)
	policies := map[string]*domain.Policy{"default": {Limit: 10, Window: time.Minute, Enabled: true}}

	require.NoError(t, p.Publish(policies, "default"))
	v1 := p.Snapshot().Version

	require.NoError(t, p.Publish(policies, "default"))
	v2 := p.Snapshot().Version

	assert.Greater(t, v2, v1)
}

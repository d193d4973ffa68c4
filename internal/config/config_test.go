package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SLA_WARNING_LEAD", "")
	t.Setenv("SLA_DEDUP_BUCKET", "")
	t.Setenv("SLA_WARNING_DEDUP_TTL", "")
	t.Setenv("NOTIFY_KAFKA_BROKERS", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, cfg.Monitor.WarningLead)
	assert.Equal(t, time.Hour, cfg.Monitor.DedupBucket)
	assert.Equal(t, time.Hour, cfg.Monitor.WarningDedupTTL)
	assert.Empty(t, cfg.Notification.KafkaBrokers)
}

func TestLoad_ParsesDurationsAndLists(t *testing.T) {
	t.Setenv("SLA_WARNING_LEAD", "1800")
	t.Setenv("SLA_DEDUP_BUCKET", "15m")
	t.Setenv("SLA_WARNING_DEDUP_TTL", "")
	t.Setenv("NOTIFY_KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, cfg.Monitor.WarningLead)
	assert.Equal(t, 15*time.Minute, cfg.Monitor.DedupBucket)
	assert.Equal(t, 30*time.Minute, cfg.Monitor.WarningDedupTTL)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Notification.KafkaBrokers)
}

func TestLoad_RejectsWarningTTLShorterThanLead(t *testing.T) {
	t.Setenv("SLA_WARNING_LEAD", "1h")
	t.Setenv("SLA_WARNING_DEDUP_TTL", "10m")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SLA_WARNING_DEDUP_TTL")
}

func TestMonitorConfig_Validate(t *testing.T) {
	valid := MonitorConfig{
		WarningLead:       time.Minute,
		DedupBucket:       time.Hour,
		WarningDedupTTL:   time.Hour,
		ViolationDedupTTL: time.Hour,
	}
	require.NoError(t, valid.Validate())

	bad := valid
	bad.WarningLead = 0
	bad.DedupBucket = -time.Second
	err := bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SLA_WARNING_LEAD")
	assert.Contains(t, err.Error(), "SLA_DEDUP_BUCKET")
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocations(t *testing.T) {
	locs, err := ParseLocations("delhi:New Delhi:28.61:77.21; pune:Pune:18.52:73.86")
	require.NoError(t, err)
	require.Len(t, locs, 2)
	assert.Equal(t, "New Delhi", locs[0].Name)
	assert.Equal(t, 73.86, locs[1].Lon)

	defaults, err := ParseLocations("")
	require.NoError(t, err)
	assert.Len(t, defaults, 10)
	assert.Equal(t, "delhi", defaults[0].ID)

	for _, bad := range []string{
		"delhi:Delhi:28.6",
		"delhi:Delhi:north:77",
		"delhi:Delhi:95:77",
		"a:A:1:1;a:A:2:2",
		";",
	} {
		_, err := ParseLocations(bad)
		assert.Error(t, err, bad)
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("AQI_LOCATIONS", "delhi:Delhi:28.6139:77.2090")
	t.Setenv("INGESTION_INTERVAL", "30m")
	t.Setenv("TRAINING_RIDGE_LAMBDA", "2.5")
	t.Setenv("MINIO_SECURE", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Len(t, cfg.Ingestion.Locations, 1)
	assert.Equal(t, 30*time.Minute, cfg.Ingestion.Interval)
	assert.Equal(t, 2.5, cfg.Training.Lambda)
	assert.True(t, cfg.Minio.Secure)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 6*time.Hour, cfg.Alerting.Cooldown)
}

func TestLoad_InvalidLocations(t *testing.T) {
	t.Setenv("AQI_LOCATIONS", "broken")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_NoCredentialDefaults(t *testing.T) {
	for _, key := range []string{"DB_PASSWORD", "OPENWEATHER_API_KEY", "MINIO_SECRET_KEY", "SMTP_PASSWORD", "SMS_GATEWAY_PASSWORD"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.Database.Password)
	assert.Empty(t, cfg.Provider.APIKey)
	assert.Empty(t, cfg.Minio.SecretKey)
	assert.False(t, cfg.SMTP.Configured())
	assert.False(t, cfg.SMS.Configured())
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		API:    APIConfig{Port: 8002},
		Server: ServerConfig{Port: 8080},
		Storage: StorageConfig{
			Paths: []StoragePathConfig{{Name: "primary", Root: "/data/primary"}},
		},
		Recording: RecordingConfig{Muxer: "mp4", SegmentMaxDuration: 10 * time.Minute},
		Monitoring: MonitoringConfig{
			MinBufferingPercent: 20,
		},
		Streams: []StreamConfig{{ID: "cam1", URI: "rtsp://10.0.0.5/stream1"}},
	}
}

func TestValidateAcceptsValidConfig(t *testing.T) {
	assert.NoError(t, validate(validConfig()))
}

func TestValidateRejectsEmptyStoragePaths(t *testing.T) {
	c := validConfig()
	c.Storage.Paths = nil
	err := validate(c)
	assert.ErrorContains(t, err, "storage.paths must contain at least one entry")
}

func TestValidateRejectsDuplicateStoragePathNames(t *testing.T) {
	c := validConfig()
	c.Storage.Paths = append(c.Storage.Paths, StoragePathConfig{Name: "primary", Root: "/data/secondary"})
	err := validate(c)
	assert.ErrorContains(t, err, "is duplicated")
}

func TestValidateRejectsUnknownMuxer(t *testing.T) {
	c := validConfig()
	c.Recording.Muxer = "avi"
	err := validate(c)
	assert.ErrorContains(t, err, "recording.muxer")
}

func TestValidateRejectsMissingJWTSecretWhenAuthEnabled(t *testing.T) {
	c := validConfig()
	c.API.AuthEnabled = true
	err := validate(c)
	assert.ErrorContains(t, err, "jwt_secret_key")
}

func TestValidateRejectsInvalidStreamURI(t *testing.T) {
	c := validConfig()
	c.Streams[0].URI = "not a uri"
	err := validate(c)
	assert.ErrorContains(t, err, "is not a valid URI")
}

func TestValidateRejectsDuplicateStreamIDs(t *testing.T) {
	c := validConfig()
	c.Streams = append(c.Streams, StreamConfig{ID: "cam1", URI: "rtsp://10.0.0.6/stream2"})
	err := validate(c)
	assert.ErrorContains(t, err, "is duplicated")
}

func TestValidateRejectsOutOfRangeBufferingPercent(t *testing.T) {
	c := validConfig()
	c.Monitoring.MinBufferingPercent = 150
	err := validate(c)
	assert.ErrorContains(t, err, "min_buffering_percent")
}

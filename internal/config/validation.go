package config

import (
	"fmt"
	"net/url"
	"strings"
)

// validate checks structural invariants on a fully-unmarshaled Config.
// It does not check filesystem existence (storage paths may not be
// mounted yet at load time; the rotation poller handles that).
func validate(c *Config) error {
	var errs []string

	if c.API.Port <= 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Sprintf("api.port out of range: %d", c.API.Port))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port out of range: %d", c.Server.Port))
	}
	if c.API.AuthEnabled && c.API.JWTSecretKey == "" {
		errs = append(errs, "api.jwt_secret_key must be set when api.auth_enabled is true")
	}

	if len(c.Storage.Paths) == 0 {
		errs = append(errs, "storage.paths must contain at least one entry")
	}
	seenNames := make(map[string]bool, len(c.Storage.Paths))
	for i, p := range c.Storage.Paths {
		if p.Name == "" {
			errs = append(errs, fmt.Sprintf("storage.paths[%d].name must not be empty", i))
		} else if seenNames[p.Name] {
			errs = append(errs, fmt.Sprintf("storage.paths[%d].name %q is duplicated", i, p.Name))
		} else {
			seenNames[p.Name] = true
		}
		if p.Root == "" {
			errs = append(errs, fmt.Sprintf("storage.paths[%d].root must not be empty", i))
		}
	}
	if c.Storage.Rotation.BufferCapBytes < 0 {
		errs = append(errs, "storage.rotation.buffer_cap_bytes must not be negative")
	}
	if c.Storage.Rotation.MinFreeBytes < 0 {
		errs = append(errs, "storage.rotation.min_free_bytes must not be negative")
	}

	switch strings.ToLower(c.Recording.Muxer) {
	case "mp4", "mkv", "":
	default:
		errs = append(errs, fmt.Sprintf("recording.muxer %q is not one of mp4, mkv", c.Recording.Muxer))
	}
	if c.Recording.SegmentMaxDuration < 0 {
		errs = append(errs, "recording.segment_max_duration must not be negative")
	}
	if c.Recording.QueueCapacity < 0 {
		errs = append(errs, "recording.queue_capacity must not be negative")
	}

	if c.Monitoring.MinBufferingPercent < 0 || c.Monitoring.MinBufferingPercent > 100 {
		errs = append(errs, "monitoring.min_buffering_percent must be between 0 and 100")
	}
	if c.Monitoring.MaxConsecutiveFailures < 0 {
		errs = append(errs, "monitoring.max_consecutive_failures must not be negative")
	}

	seenStreamIDs := make(map[string]bool, len(c.Streams))
	for i, s := range c.Streams {
		if s.ID == "" {
			errs = append(errs, fmt.Sprintf("streams[%d].id must not be empty", i))
		} else if seenStreamIDs[s.ID] {
			errs = append(errs, fmt.Sprintf("streams[%d].id %q is duplicated", i, s.ID))
		} else {
			seenStreamIDs[s.ID] = true
		}
		if s.URI == "" {
			errs = append(errs, fmt.Sprintf("streams[%d].uri must not be empty", i))
			continue
		}
		u, err := url.Parse(s.URI)
		if err != nil || u.Scheme == "" {
			errs = append(errs, fmt.Sprintf("streams[%d].uri %q is not a valid URI", i, s.URI))
		}
	}

	if c.RTSP != nil && (c.RTSP.ListenPort <= 0 || c.RTSP.ListenPort > 65535) {
		errs = append(errs, fmt.Sprintf("rtsp.listen_port out of range: %d", c.RTSP.ListenPort))
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error", "fatal", "panic", "":
	default:
		errs = append(errs, fmt.Sprintf("logging.level %q is not a recognized level", c.Logging.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}

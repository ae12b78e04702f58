package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/streamvault/streamvault-go/internal/config"
)

func main() {
	yamlOut := flag.Bool("yaml", false, "dump the loaded configuration as YAML instead of a summary")
	flag.Parse()

	configPath := "config/default.yaml"
	if flag.NArg() > 0 {
		configPath = flag.Arg(0)
	}

	loader := config.NewLoader()
	cfg, err := loader.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	if *yamlOut {
		data, err := config.DumpYAML(cfg)
		if err != nil {
			log.Fatalf("failed to render configuration as yaml: %v", err)
		}
		fmt.Print(string(data))
		return
	}

	fmt.Println("=== StreamVault Configuration ===")
	fmt.Printf("App: %s (%s) instance=%s\n", cfg.App.Name, cfg.App.Environment, cfg.App.InstanceID)

	fmt.Printf("\nAPI:\n")
	fmt.Printf("  Listen: %s:%d%s\n", cfg.API.Host, cfg.API.Port, cfg.API.WebSocketPath)
	fmt.Printf("  Auth Enabled: %t\n", cfg.API.AuthEnabled)
	fmt.Printf("  Max Connections: %d\n", cfg.API.MaxConnections)

	fmt.Printf("\nServer:\n")
	fmt.Printf("  Listen: %s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("  Shutdown Timeout: %s\n", cfg.Server.ShutdownTimeout)

	fmt.Printf("\nStorage:\n")
	for _, p := range cfg.Storage.Paths {
		fmt.Printf("  Path %q: root=%s priority=%d max_usage_gb=%d enabled=%t\n", p.Name, p.Root, p.Priority, p.MaxUsageGB, p.Enabled)
	}
	fmt.Printf("  Probe Interval: %s\n", cfg.Storage.ProbeInterval)
	fmt.Printf("  Cleanup Enabled: %t (max_size_gb=%d, max_age_days=%d)\n", cfg.Storage.Cleanup.Enabled, cfg.Storage.Cleanup.MaxSizeGB, cfg.Storage.Cleanup.MaxAgeDays)
	fmt.Printf("  Rotation: mount_roots=%v auto_rotate=%t\n", cfg.Storage.Rotation.MountRoots, cfg.Storage.Rotation.AutoRotate)

	fmt.Printf("\nRecording:\n")
	fmt.Printf("  Base Dir: %s\n", cfg.Recording.BaseDir)
	fmt.Printf("  Muxer: %s\n", cfg.Recording.Muxer)
	fmt.Printf("  Segment Max Duration: %s\n", cfg.Recording.SegmentMaxDuration)

	fmt.Printf("\nMonitoring:\n")
	fmt.Printf("  Check Interval: %s\n", cfg.Monitoring.CheckInterval)
	fmt.Printf("  Max Consecutive Failures: %d\n", cfg.Monitoring.MaxConsecutiveFailures)
	fmt.Printf("  Auto Remove Failed: %t\n", cfg.Monitoring.AutoRemoveFailed)

	fmt.Printf("\nStream Defaults:\n")
	fmt.Printf("  Reconnect Timeout: %s\n", cfg.StreamDefaults.ReconnectTimeout)
	fmt.Printf("  Max Reconnect Attempts: %d\n", cfg.StreamDefaults.MaxReconnectAttempts)

	fmt.Printf("\nStreams (%d configured):\n", len(cfg.Streams))
	for _, sc := range cfg.Streams {
		fmt.Printf("  %s: uri=%s enabled=%t recording=%t\n", sc.ID, sc.URI, sc.Enabled, sc.RecordingEnabled)
	}

	fmt.Printf("\nLogging:\n")
	fmt.Printf("  Level: %s Format: %s\n", cfg.Logging.Level, cfg.Logging.Format)
	fmt.Printf("  File Enabled: %t Console Enabled: %t\n", cfg.Logging.FileEnabled, cfg.Logging.ConsoleEnabled)

	fmt.Println("\n=== Configuration loaded successfully ===")
}

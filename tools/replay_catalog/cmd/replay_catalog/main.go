package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/Northernside/mineflayer-replay/internal/container"
	replaycatalog "github.com/Northernside/mineflayer-replay/tools/replay_catalog"
)

func main() {
	root := flag.String("dir", ".", "directory containing .mcreplay files")
	jsonFlag := flag.Bool("json", false, "emit JSON instead of human-readable output")
	prune := flag.Bool("prune", false, "remove stale .mcreplay files before listing")
	maxFiles := flag.Int("max-files", 0, "with -prune, keep at most this many newest files (0 disables the limit)")
	maxAgeHours := flag.Int("max-age-hours", 0, "with -prune, remove files older than this many hours (0 disables the limit)")
	flag.Parse()

	if *prune {
		policy := container.RetentionPolicy{
			MaxFiles: *maxFiles,
			MaxAge:   time.Duration(*maxAgeHours) * time.Hour,
		}
		cleaner := container.NewCleaner(*root, policy, nil)
		cleaner.RunOnce()
		stats := cleaner.Stats()
		fmt.Fprintf(os.Stderr, "retention sweep kept %d files (%d bytes)\n", stats.Files, stats.Bytes)
	}

	entries, err := replaycatalog.List(*root)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *jsonFlag {
		out, err := replaycatalog.MarshalEntries(entries)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(string(out))
		return
	}

	for _, entry := range entries {
		fmt.Printf("%s (%d packets, %dms)\n", entry.Path, entry.PacketCount, entry.DurationMs)
		fmt.Printf("  bot: %s  version: %s\n", entry.Metadata.BotUsername, entry.Metadata.VersionTag)
		fmt.Printf("  spawn: (%d, %d, %d)\n", entry.Metadata.SpawnX, entry.Metadata.SpawnY, entry.Metadata.SpawnZ)
		if len(entry.PacketsByKind) > 0 {
			kinds := make([]string, 0, len(entry.PacketsByKind))
			for kind := range entry.PacketsByKind {
				kinds = append(kinds, kind)
			}
			sort.Strings(kinds)
			fmt.Printf("  packets:\n")
			for _, kind := range kinds {
				fmt.Printf("    %s: %d\n", kind, entry.PacketsByKind[kind])
			}
		}
	}
}

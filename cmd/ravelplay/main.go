// Command ravelplay is a minimal command-line front end for the
// playback engine: point it at a local file or a URL and it plays the
// file, reporting errors (and, with -debug, every lifecycle event) to
// stderr. Grounded in the
// teacher's cmd/audio/test.go (a scratch harness that opened an MP3
// and pushed samples to an audio device directly) and cmd/desktop/main.go's
// config-and-signal-handling shape, rebuilt on internal/player instead
// of a raw portaudio stream.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/ravel-player/ravel/internal/bookmark"
	"github.com/ravel-player/ravel/internal/config"
	"github.com/ravel-player/ravel/internal/player"
	"github.com/ravel-player/ravel/internal/resolve"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config file")
		volume     = flag.Float64("volume", -1, "playback volume in [0,1], overrides config default")
		loop       = flag.Bool("loop", false, "loop playback instead of stopping at end of stream")
		probe      = flag.Bool("probe", false, "resolve URL metadata (length, range support) before playing")
		resumeFlag = flag.Bool("resume", true, "resume from the saved bookmark position, if any")
		find       = flag.String("find", "", "fuzzy-match SOURCE against saved bookmarks and play the best match")
		debug      = flag.Bool("debug", false, "enable verbose component logging")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *debug {
		cfg.Debug = true
	}

	store, err := bookmark.Open(cfg.Bookmark.DatabasePath, cfg.Debug)
	if err != nil {
		log.Fatalf("open bookmark store: %v", err)
	}
	defer store.Close()

	source := flag.Arg(0)
	if *find != "" {
		match, err := findBookmark(context.Background(), store, *find)
		if err != nil {
			log.Fatalf("find bookmark: %v", err)
		}
		source = match
	}
	if source == "" {
		fmt.Fprintln(os.Stderr, "usage: ravelplay [flags] <file-or-url>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	vol := cfg.Audio.DefaultVolume
	if *volume >= 0 {
		vol = *volume
	}

	p, err := player.New(player.Options{
		SampleRate:    cfg.Audio.SampleRate,
		DefaultVolume: vol,
		ChunkSize:     cfg.Download.ChunkSize,
		Debug:         cfg.Debug,
	})
	if err != nil {
		log.Fatalf("init player: %v", err)
	}
	defer p.Close()
	if vol == 0 {
		// player.Options treats a zero DefaultVolume as unset.
		p.SetVolume(0)
	}

	p.SetLoop(*loop)
	p.SetCallback(func(e player.Event) {
		if e.Kind == player.EventError {
			log.Printf("ravelplay: error: %s", e.Message)
			return
		}
		if cfg.Debug {
			log.Printf("ravelplay: event %s", e.Kind)
		}
	})
	p.SetLoaderCallback(func(e player.LoaderEvent) {
		if cfg.Debug {
			log.Printf("ravelplay: loader %s", e.Kind)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := load(ctx, p, store, cfg, source, *probe, *resumeFlag); err != nil {
		log.Fatalf("load %q: %v", source, err)
	}

	p.Play()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-sigCh:
			saveBookmark(store, source, p)
			return
		case <-ticker.C:
			if p.Ended() {
				saveBookmark(store, source, p)
				return
			}
		}
	}
}

// load resolves (optionally) and loads source, honoring a saved
// bookmark position unless resume is false.
func load(ctx context.Context, p *player.Player, store *bookmark.Store, cfg *config.Config, source string, probe, resume bool) error {
	isURL := looksLikeURL(source)

	if probe && isURL {
		r := resolve.New(resolve.Options{
			RetryMax:          cfg.Resolve.Retries,
			Timeout:           time.Duration(cfg.Resolve.TimeoutSeconds) * time.Second,
			RequestsPerSecond: cfg.Resolve.RequestsPerSecond,
			Burst:             cfg.Resolve.BurstSize,
			Debug:             cfg.Debug,
		})
		info, err := r.Resolve(ctx, source)
		if err != nil {
			return fmt.Errorf("probe: %w", err)
		}
		log.Printf("ravelplay: resolved %s: %d bytes, range-support=%v, type=%s",
			source, info.ContentLength, info.AcceptsRanges, info.ContentType)
	}

	var err error
	if isURL {
		err = p.LoadURL(ctx, source, nil)
	} else {
		err = p.LoadFile(source)
	}
	if err != nil {
		return err
	}

	if resume {
		bm, ok, err := store.Get(ctx, source)
		if err == nil && ok && bm.Position > 0 {
			if err := p.Seek(bm.Position); err != nil {
				log.Printf("ravelplay: resume seek failed: %v", err)
			}
		}
	}
	return nil
}

func saveBookmark(store *bookmark.Store, source string, p *player.Player) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := store.Save(ctx, source, p.Position(), p.Duration()); err != nil {
		log.Printf("ravelplay: save bookmark: %v", err)
	}
}

// findBookmark fuzzy-matches query against every saved bookmark's
// source string and returns the best match, the way the teacher's
// internal/search fuzzy-matched song/album/author titles against a
// query (lithammer/fuzzysearch), narrowed here to one field.
func findBookmark(ctx context.Context, store *bookmark.Store, query string) (string, error) {
	all, err := store.List(ctx)
	if err != nil {
		return "", err
	}
	if len(all) == 0 {
		return "", fmt.Errorf("no saved bookmarks to match against")
	}

	type candidate struct {
		source string
		rank   int
	}
	var matches []candidate
	for _, bm := range all {
		if fuzzy.MatchFold(query, bm.Source) {
			matches = append(matches, candidate{source: bm.Source, rank: fuzzy.RankMatchFold(query, bm.Source)})
		}
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no bookmark matches %q", query)
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].rank < matches[j].rank })
	return matches[0].source, nil
}

func looksLikeURL(s string) bool {
	return len(s) > 7 && (s[:7] == "http://" || (len(s) > 8 && s[:8] == "https://"))
}

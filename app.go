package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/cuecard/internal/audio"
	"github.com/dgnsrekt/cuecard/internal/cache"
	"github.com/dgnsrekt/cuecard/internal/config"
	"github.com/dgnsrekt/cuecard/internal/diag"
	"github.com/dgnsrekt/cuecard/internal/ratelimit"
	"github.com/dgnsrekt/cuecard/internal/script"
	"github.com/dgnsrekt/cuecard/internal/store"
	"github.com/dgnsrekt/cuecard/internal/synth"
	"github.com/dgnsrekt/cuecard/internal/voice"
	"github.com/dgnsrekt/cuecard/internal/voicecache"
)

// services holds everything built from the configuration. Nothing is
// global; commands build what they need and close it when done.
type services struct {
	cfg      config.Config
	logger   *log.Logger
	observer diag.Observer

	client  *synth.Client
	objects *cache.ObjectStore
	blobs   *cache.BlobCache
	store   *store.Store // nil unless cache.durable
	voices  *voicecache.Cache
}

func newServices(cfg config.Config, logger *log.Logger) (*services, error) {
	if logger == nil {
		logger = log.Default()
	}
	s := &services{
		cfg:      cfg,
		logger:   logger,
		observer: diag.NewLogObserver(logger),
	}

	limiter := ratelimit.New(cfg.Synth.RateLimit.Tokens, cfg.Synth.RateLimit.Interval)
	s.client = synth.New(cfg.ClientConfig(),
		synth.WithLimiter(limiter),
		synth.WithObserver(s.observer),
		synth.WithLogger(logger),
	)

	validator := audio.NewValidator(append(cfg.ValidatorOptions(),
		audio.WithValidatorObserver(s.observer),
		audio.WithValidatorLogger(logger),
	)...)

	s.objects = cache.NewObjectStore()
	s.blobs = cache.NewBlobCache(cfg.BlobCacheConfig(), s.objects,
		cache.WithLogger(logger),
		cache.WithObserver(s.observer),
	)
	s.blobs.Start()

	opts := []voicecache.Option{
		voicecache.WithValidator(validator),
		voicecache.WithObserver(s.observer),
		voicecache.WithLogger(logger),
	}
	if cfg.Cache.Durable {
		st, err := store.Open(cfg.Cache.DBPath, store.WithCompressionLevel(cfg.Cache.CompressionLevel))
		if err != nil {
			_ = s.blobs.Close()
			return nil, fmt.Errorf("opening voice cache: %w", err)
		}
		s.store = st
		opts = append(opts, voicecache.WithStore(st))
	}
	s.voices = voicecache.New(s.blobs, s.client, opts...)

	if !s.client.HasAPIKey() {
		logger.Warn("ELEVENLABS_API_KEY is not set; lines will play as silence")
	}
	return s, nil
}

// Close waits for background cache writes and releases resources.
func (s *services) Close() error {
	s.voices.Wait()
	err := s.blobs.Close()
	if s.store != nil {
		err = errors.Join(err, s.store.Close())
	}
	return err
}

func (s *services) policy() voice.Policy {
	if s.cfg.Playback.VoicePolicy == config.PolicyFuzzy {
		return voice.Fuzzy{Fallback: voice.RoundRobin{}}
	}
	return voice.RoundRobin{}
}

// cast loads the roster saved next to the script and fills in anything
// missing. Newly assigned voices are written back so they stay stable
// between runs.
func (s *services) cast(ctx context.Context, sc *script.Script, path, role string) (*voice.Roster, error) {
	sidecar := voice.SidecarPath(path)
	roster, err := voice.Load(sidecar)
	if err != nil {
		return nil, err
	}
	roster.Sync(sc.Characters())

	switch {
	case role != "":
		roster.SetFocusedRole(role)
	case s.cfg.Playback.FocusedRole != "":
		roster.SetFocusedRole(s.cfg.Playback.FocusedRole)
	case roster.FocusedRole() == "" && sc.FocusedRole != "":
		roster.SetFocusedRole(sc.FocusedRole)
	}
	if s.cfg.Playback.NarratorVoice != "" {
		roster.SetNarratorVoice(s.cfg.Playback.NarratorVoice)
	}

	if len(roster.Unassigned()) == 0 && roster.NarratorVoice() != "" {
		return roster, nil
	}
	n := roster.AutoAssign(s.policy(), s.client.Voices(ctx))
	s.logger.Debug("assigned voices", "count", n, "policy", s.cfg.Playback.VoicePolicy)
	if n > 0 {
		if err := roster.Save(sidecar); err != nil {
			s.logger.Warn("could not save cast", "path", sidecar, "err", err)
		}
	}
	return roster, nil
}

package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"promoreel/internal/adapter/repo"
	"promoreel/internal/asyncop"
	httpapi "promoreel/internal/http"
	"promoreel/internal/http/handlers"
	"promoreel/internal/infra"
	"promoreel/internal/infra/credentials"
	"promoreel/internal/infra/geoip"
	"promoreel/internal/jobs"
	"promoreel/internal/media"
	"promoreel/internal/middleware"
	"promoreel/internal/pipeline"
	"promoreel/internal/providers/script"
	"promoreel/internal/providers/speech"
	"promoreel/internal/providers/video"
	"promoreel/internal/publish"
	"promoreel/internal/retry"
	"promoreel/internal/storage"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	videos := repo.NewVideoRepository(dbpool)
	posts := repo.NewPostRepository(dbpool)

	store, err := storage.NewFileStore(cfg.StorageBasePath, cfg.StorageBaseURL, cfg.StorageMaxBytes)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize artifact storage")
	}

	// Environment secrets win; the integration-token table fills the gaps.
	tokenStore := credentials.NewStore(infra.NewSQLRunner(dbpool, logger))
	creds := credentials.Resolve(ctx, tokenStore, logger, credentials.Known())

	retryExec := retry.NewExecutor(logger)
	poller := asyncop.NewPoller(logger)

	tracker := jobs.NewTracker(jobs.NewMemoryStore(), logger)
	engine := pipeline.NewEngine(pipeline.EngineOptions{
		Tracker: tracker,
		Videos:  videos,
		Objects: store,
		References: pipeline.NewResolver(pipeline.ResolverOptions{
			Store:  store,
			Logger: logger,
		}),
		VideoGateway:  buildVideoGateway(cfg, creds, retryExec, poller, logger),
		SpeechGateway: buildSpeechGateway(cfg, creds, retryExec, logger),
		ScriptGateway: buildScriptGateway(cfg, creds, retryExec, logger),
		Composer: media.NewComposer(media.ComposerOptions{
			FFmpegBin:     cfg.FFmpegPath,
			WatermarkPath: cfg.WatermarkPath,
			MusicPath:     cfg.MusicPath,
			Logger:        logger,
		}),
		Logger: logger,
	})

	orchestrator := publish.NewOrchestrator(publish.OrchestratorOptions{
		Posts:      posts,
		Publishers: buildPublishers(cfg, creds, retryExec, poller, logger),
		Logger:     logger,
	})

	app := handlers.NewApp(handlers.AppOptions{
		Engine:    engine,
		Publisher: orchestrator,
		Tracker:   tracker,
		Videos:    videos,
		Posts:     posts,
		Objects:   store,
		Logger:    logger,
	})

	var lookup middleware.CountryLookup
	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	} else if resolver != nil {
		lookup = resolver.CountryCode
		if closer, ok := resolver.(io.Closer); ok {
			defer closer.Close()
		}
	}

	router := httpapi.NewRouter(httpapi.RouterOptions{
		App:            app,
		Logger:         logger,
		DefaultLocale:  cfg.DefaultLocale,
		CountryLookup:  lookup,
		AllowedOrigins: cfg.AllowedOrigins,
		JWTSecret:      cfg.JWTSecret,
		RateLimit:      cfg.RateLimitPerMinute,
		RateWindow:     time.Minute,
		StaticDir:      cfg.StorageBasePath,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("addr", server.Addr()).Msg("api listening")
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

// buildVideoGateway assembles the video fallback chain from the configured
// provider order. Unknown names are logged and skipped so a typo degrades
// the chain instead of aborting startup.
func buildVideoGateway(cfg *infra.Config, creds credentials.Source, retryExec *retry.Executor, poller *asyncop.Poller, logger zerolog.Logger) *video.Gateway {
	var providers []video.Provider
	for _, name := range cfg.VideoProviders {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "veo":
			providers = append(providers, video.NewVeo(video.VeoOptions{
				Credentials: creds,
				BaseURL:     cfg.GeminiBaseURL,
				Model:       cfg.VeoModel,
				Logger:      logger,
			}))
		case "wan":
			providers = append(providers, video.NewWan(video.WanOptions{
				Credentials: creds,
				BaseURL:     cfg.DashScopeBaseURL,
				Model:       cfg.WanModel,
				Logger:      logger,
			}))
		case "runpod":
			providers = append(providers, video.NewRunPod(video.RunPodOptions{
				Credentials: creds,
				BaseURL:     cfg.RunPodBaseURL,
				EndpointID:  cfg.RunPodEndpointID,
				Logger:      logger,
			}))
		default:
			logger.Warn().Str("provider", name).Msg("unknown video provider in VIDEO_PROVIDERS")
		}
	}
	var placeholder *video.Placeholder
	if cfg.PlaceholderEnabled {
		placeholder = video.NewPlaceholder(logger)
	}
	return video.NewGateway(video.GatewayOptions{
		Providers:        providers,
		Placeholder:      placeholder,
		Retry:            retryExec,
		Poller:           poller,
		RetryMaxAttempts: cfg.RetryMaxAttempts,
		RetryBaseDelay:   cfg.RetryBaseDelay,
		PollInterval:     cfg.GenPollInterval,
		PollMaxAttempts:  cfg.GenPollMaxAttempts,
		Logger:           logger,
	})
}

func buildSpeechGateway(cfg *infra.Config, creds credentials.Source, retryExec *retry.Executor, logger zerolog.Logger) *speech.Gateway {
	var providers []speech.Synthesizer
	for _, name := range cfg.SpeechProviders {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "elevenlabs":
			providers = append(providers, speech.NewElevenLabs(speech.ElevenLabsOptions{
				Credentials: creds,
				BaseURL:     cfg.ElevenLabsBaseURL,
				VoiceID:     cfg.ElevenLabsVoiceID,
				Logger:      logger,
			}))
		case "openai":
			providers = append(providers, speech.NewOpenAI(speech.OpenAIOptions{
				Credentials: creds,
				BaseURL:     cfg.OpenAIBaseURL,
				Model:       cfg.OpenAITTSModel,
				Voice:       cfg.OpenAITTSVoice,
				Logger:      logger,
			}))
		case "qwen":
			providers = append(providers, speech.NewQwen(speech.QwenOptions{
				Credentials: creds,
				BaseURL:     cfg.DashScopeBaseURL,
				Model:       cfg.QwenTTSModel,
				Logger:      logger,
			}))
		default:
			logger.Warn().Str("provider", name).Msg("unknown speech provider in SPEECH_PROVIDERS")
		}
	}
	return speech.NewGateway(speech.GatewayOptions{
		Providers:        providers,
		Retry:            retryExec,
		RetryMaxAttempts: cfg.RetryMaxAttempts,
		RetryBaseDelay:   cfg.RetryBaseDelay,
		Logger:           logger,
	})
}

func buildScriptGateway(cfg *infra.Config, creds credentials.Source, retryExec *retry.Executor, logger zerolog.Logger) *script.Gateway {
	var providers []script.Service
	for _, name := range cfg.ScriptProviders {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "gemini":
			providers = append(providers, script.NewGemini(script.GeminiOptions{
				Credentials: creds,
				Model:       cfg.GeminiModel,
				BaseURL:     cfg.GeminiBaseURL,
				Logger:      logger,
			}))
		case "openai":
			providers = append(providers, script.NewOpenAI(script.OpenAIOptions{
				Credentials: creds,
				Model:       cfg.OpenAIModel,
				BaseURL:     cfg.OpenAIBaseURL,
				Logger:      logger,
			}))
		default:
			logger.Warn().Str("provider", name).Msg("unknown script provider in SCRIPT_PROVIDERS")
		}
	}
	return script.NewGateway(script.GatewayOptions{
		Providers:        providers,
		Retry:            retryExec,
		RetryMaxAttempts: cfg.RetryMaxAttempts,
		RetryBaseDelay:   cfg.RetryBaseDelay,
		Logger:           logger,
	})
}

func buildPublishers(cfg *infra.Config, creds credentials.Source, retryExec *retry.Executor, poller *asyncop.Poller, logger zerolog.Logger) []publish.Publisher {
	return []publish.Publisher{
		publish.NewTikTok(publish.TikTokOptions{
			Credentials:     creds,
			BaseURL:         cfg.TikTokBaseURL,
			Poller:          poller,
			PollInterval:    cfg.PublishPollInterval,
			PollMaxAttempts: cfg.PublishPollMaxAttempts,
			Logger:          logger,
		}),
		publish.NewInstagram(publish.InstagramOptions{
			Credentials:      creds,
			BaseURL:          cfg.GraphBaseURL,
			UserID:           cfg.InstagramUserID,
			Retry:            retryExec,
			RetryMaxAttempts: cfg.RetryMaxAttempts,
			RetryBaseDelay:   cfg.RetryBaseDelay,
			Poller:           poller,
			PollInterval:     cfg.PublishPollInterval,
			PollMaxAttempts:  cfg.PublishPollMaxAttempts,
			Logger:           logger,
		}),
		publish.NewFacebook(publish.FacebookOptions{
			Credentials:     creds,
			BaseURL:         cfg.GraphBaseURL,
			PageID:          cfg.FacebookPageID,
			Poller:          poller,
			PollInterval:    cfg.PublishPollInterval,
			PollMaxAttempts: cfg.PublishPollMaxAttempts,
			Logger:          logger,
		}),
	}
}

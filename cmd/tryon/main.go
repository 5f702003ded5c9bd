// Command tryon submits one virtual try-on request end to end: it normalizes
// and uploads the two photos, creates the record, enqueues the compose job
// once the push channel is listening, and waits for the completion event.
package main

import (
	"context"
	"flag"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"proteus/internal/api"
	"proteus/internal/cache"
	"proteus/internal/domain"
	"proteus/internal/imageconv"
	"proteus/internal/infra"
	"proteus/internal/infra/credentials"
	"proteus/internal/push"
	"proteus/internal/storeclient"
	"proteus/internal/tryon"
)

func main() {
	var (
		userPath   = flag.String("user", "", "Path to the user photo (required)")
		outfitPath = flag.String("outfit", "", "Path to the outfit photo (required)")
		wait       = flag.Duration("wait", 5*time.Minute, "How long to wait for the completion event")
	)
	flag.Parse()

	if *userPath == "" || *outfitPath == "" {
		fmt.Fprintln(os.Stderr, "usage: tryon -user <photo> -outfit <photo>")
		os.Exit(2)
	}

	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	var credStore api.CredentialStore
	if cfg.CredentialFile != "" {
		credStore, err = credentials.NewFileStore(cfg.CredentialFile)
		if err != nil {
			logger.Fatal().Err(err).Msg("credential store")
		}
	}

	session, err := api.NewSession(api.Options{
		BaseURL:     cfg.APIBaseURL,
		Token:       cfg.AuthToken,
		Logger:      &logger,
		Credentials: credStore,
		Timeout:     cfg.HTTPTimeout,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("session")
	}
	if cfg.AuthToken == "" {
		if err := session.RestoreCredential(); err != nil {
			logger.Warn().Err(err).Msg("restore credential")
		}
	}
	if session.Credential() == "" {
		logger.Fatal().Msg("no credential: set AUTH_TOKEN or CREDENTIAL_FILE")
	}

	store := storeclient.New(session)
	client, err := tryon.New(tryon.Options{Session: session, Store: store, Logger: &logger})
	if err != nil {
		logger.Fatal().Err(err).Msg("client")
	}
	records := cache.New(client, &logger)
	client.AttachCache(records)

	userFile, err := readImage(*userPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("read user photo")
	}
	outfitFile, err := readImage(*outfitPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("read outfit photo")
	}

	ctx := context.Background()

	// Prime the record collection so optimistic inserts and reconciliations
	// have somewhere to land.
	if _, err := records.List(ctx, tryon.ListQuery{}); err != nil {
		logger.Fatal().Err(err).Msg("fetch records")
	}

	submitted := make(chan *tryon.SubmitResult, 1)

	channel, err := push.NewChannel(push.Options{
		Session:          session,
		Logger:           &logger,
		HandshakeTimeout: cfg.WSHandshakeTimeout,
		OnReady: func() {
			// Enqueue only once the channel is listening, so the result
			// cannot arrive before the subscription exists.
			go func() {
				result, err := client.Submit(ctx, userFile, outfitFile)
				if err != nil {
					if result != nil && result.Record != nil {
						logger.Error().Err(err).Str("record_id", result.Record.ID).
							Msg("submission incomplete; retry possible without re-upload")
					} else {
						logger.Error().Err(err).Msg("submission failed")
					}
					os.Exit(1)
				}
				submitted <- result
			}()
		},
		OnEvent: func(ev domain.CompletionEvent) {
			records.Reconcile(ev)
		},
		OnError: func(err error) {
			logger.Error().Err(err).Msg("push channel")
		},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("channel")
	}
	defer channel.Disconnect()

	if err := channel.Connect(ctx); err != nil {
		logger.Fatal().Err(err).Msg("connect push channel")
	}

	var result *tryon.SubmitResult
	select {
	case result = <-submitted:
	case <-time.After(*wait):
		logger.Fatal().Msg("timed out waiting for submission")
	}
	logger.Info().Str("record_id", result.Record.ID).Msg("submitted; waiting for completion")

	rec, ok := awaitTerminal(records, result.Record.ID, *wait)
	if !ok {
		logger.Fatal().Dur("waited", *wait).Msg("timed out waiting for completion event")
	}
	if rec.State() == domain.StateFailed {
		logger.Error().Str("reason", rec.FailureReason).Msg("try-on failed")
		os.Exit(1)
	}

	url, err := store.PresignDownload(ctx, rec.OutfitTryOnKey)
	if err != nil {
		logger.Warn().Err(err).Str("key", rec.OutfitTryOnKey).Msg("resolve result url")
		fmt.Println(rec.OutfitTryOnKey)
		return
	}
	logger.Info().Str("key", rec.OutfitTryOnKey).Msg("try-on complete")
	fmt.Println(url)
}

// awaitTerminal polls the cached record until reconciliation moves it out of
// pending or the deadline passes.
func awaitTerminal(records *cache.Store, recordID string, wait time.Duration) (domain.TryOn, bool) {
	query := tryon.ListQuery{}
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		cached, _ := records.Cached(query)
		for _, rec := range cached {
			if rec.ID == recordID && rec.State() != domain.StatePending {
				return rec, true
			}
		}
		time.Sleep(200 * time.Millisecond)
	}
	return domain.TryOn{}, false
}

func readImage(path string) (imageconv.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return imageconv.File{}, err
	}
	mediaType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if idx := strings.Index(mediaType, ";"); idx >= 0 {
		mediaType = mediaType[:idx]
	}
	if mediaType == "" {
		return imageconv.File{}, fmt.Errorf("cannot determine media type of %s", path)
	}
	return imageconv.File{
		Name:      filepath.Base(path),
		MediaType: strings.TrimSpace(mediaType),
		Data:      data,
	}, nil
}

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/callwarden/callwarden/internal/audio"
	"github.com/callwarden/callwarden/internal/common"
	"github.com/callwarden/callwarden/internal/config"
	"github.com/callwarden/callwarden/internal/service"
	"github.com/callwarden/callwarden/internal/storage"
	"github.com/callwarden/callwarden/internal/transcribe"
)

// initStorage initializes the storage service with proper path expansion.
func initStorage(ctx context.Context) (service.Storage, error) {
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		dbPath = "$HOME/.local/share/callwarden/callwarden.db"
	}
	dbPath = config.ExpandPath(dbPath)

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// initArtifacts initializes the S3 audio artifact store from config.
func initArtifacts(ctx context.Context) (service.ArtifactStore, error) {
	bucket := viper.GetString("audio.bucket")
	if bucket == "" {
		return nil, fmt.Errorf("%w: audio.bucket", common.ErrMissingConfig)
	}

	return audio.NewS3Store(ctx, audio.S3StoreConfig{
		Bucket:   bucket,
		Region:   viper.GetString("audio.region"),
		Endpoint: viper.GetString("audio.endpoint"),
		Prefix:   viper.GetString("audio.prefix"),
	})
}

// initTranscriber initializes the batch transcription client from config.
func initTranscriber() (service.BatchTranscriber, error) {
	endpoint := viper.GetString("transcribe.batch_url")
	if endpoint == "" {
		return nil, fmt.Errorf("%w: transcribe.batch_url", common.ErrMissingConfig)
	}

	return transcribe.NewBatchClient(transcribe.BatchConfig{
		Endpoint:     endpoint,
		APIKey:       viper.GetString("transcribe.api_key"),
		PollInterval: viper.GetDuration("transcribe.poll_interval"),
		Timeout:      30 * time.Second,
	}), nil
}

package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/kalambet/relfield/internal/config"
	"github.com/kalambet/relfield/internal/fieldconfig"
	"github.com/kalambet/relfield/internal/host"
	"github.com/kalambet/relfield/internal/jira"
	"github.com/kalambet/relfield/internal/resolver"
	"github.com/kalambet/relfield/internal/storage"
)

// loadConfig reads the configuration and installs the default logger.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("loading config: %w", err)
	}
	setupLogging(cfg.Log.Level)
	return cfg, nil
}

func setupLogging(level string) {
	logLevel := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

var newJiraClient = func(cfg config.Config) (*jira.Client, error) {
	if err := cfg.RequireJira(); err != nil {
		return nil, err
	}
	return jira.New(cfg.Jira.BaseURL, jira.Auth{Email: cfg.Jira.Email, Token: cfg.Jira.APIToken}), nil
}

var newResolverClient = func(cfg config.Config) (*resolver.Client, error) {
	token, err := config.GetResolverToken(config.NewKeychain())
	if err != nil {
		return nil, fmt.Errorf("getting resolver token: %w", err)
	}
	return resolver.NewClient(cfg.Resolver.URL, token), nil
}

func openStore(cfg config.Config) (*storage.Store, error) {
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	return store, nil
}

// fieldResolver returns the resolver used by the edit and view surfaces: the
// local store when local is set, otherwise the running server.
func fieldResolver(cfg config.Config, store *storage.Store, local bool) (fieldconfig.Resolver, error) {
	if local {
		return host.NewLocalResolver(store, cfg.Field.ContextID), nil
	}
	return newResolverClient(cfg)
}

func targetFor(cfg config.Config, issueKey string) host.Target {
	return host.Target{
		FieldID:   cfg.Field.ID,
		ContextID: cfg.Field.ContextID,
		IssueKey:  issueKey,
		SiteURL:   cfg.Jira.BaseURL,
	}
}

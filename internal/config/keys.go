package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "RELFIELD_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "resolver.url", typ: kString, env: "RELFIELD_RESOLVER_URL",
		apply:   func(cfg *Config, v any) { cfg.Resolver.URL = v.(string) },
		extract: func(cfg Config) any { return cfg.Resolver.URL },
	},
	{
		key: "jira.base_url", typ: kString, env: "RELFIELD_JIRA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Jira.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Jira.BaseURL },
	},
	{
		key: "jira.email", typ: kString, env: "RELFIELD_JIRA_EMAIL",
		apply:   func(cfg *Config, v any) { cfg.Jira.Email = v.(string) },
		extract: func(cfg Config) any { return cfg.Jira.Email },
	},
	{
		key: "jira.api_token", typ: kString, env: "RELFIELD_JIRA_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Jira.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Jira.APIToken },
	},
	{
		key: "field.id", typ: kString, env: "RELFIELD_FIELD_ID",
		apply:   func(cfg *Config, v any) { cfg.Field.ID = v.(string) },
		extract: func(cfg Config) any { return cfg.Field.ID },
	},
	{
		key: "field.context_id", typ: kString, env: "RELFIELD_FIELD_CONTEXT_ID",
		apply:   func(cfg *Config, v any) { cfg.Field.ContextID = v.(string) },
		extract: func(cfg Config) any { return cfg.Field.ContextID },
	},
	{
		key: "search.page_size", typ: kInt, env: "RELFIELD_SEARCH_PAGE_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Search.PageSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Search.PageSize },
	},
	{
		key: "search.debounce", typ: kDuration, env: "RELFIELD_SEARCH_DEBOUNCE",
		apply:   func(cfg *Config, v any) { cfg.Search.Debounce = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Search.Debounce },
	},
	{
		key: "validation.debounce", typ: kDuration, env: "RELFIELD_VALIDATION_DEBOUNCE",
		apply:   func(cfg *Config, v any) { cfg.Validation.Debounce = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Validation.Debounce },
	},
	{
		key: "storage.data_dir", typ: kString, env: "RELFIELD_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "RELFIELD_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kDuration:
			v, ok, err := b.GetDuration(s.key)
			if err != nil {
				fmt.Fprintf(os.Stderr, "[WARN] could not read duration from config key %s: %v. Using default value.\n", s.key, err)
				continue
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kDuration:
			if d, err := time.ParseDuration(raw); err == nil {
				s.apply(cfg, d)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}

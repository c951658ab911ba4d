package main

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"

	"github.com/lixohealthcareequipment/growth-ops/internal/config"
	"github.com/lixohealthcareequipment/growth-ops/internal/crm"
	"github.com/lixohealthcareequipment/growth-ops/internal/identity"
	"github.com/lixohealthcareequipment/growth-ops/internal/store"
	"github.com/lixohealthcareequipment/growth-ops/pkg/googleads"
	"github.com/lixohealthcareequipment/growth-ops/pkg/postgrest"
	"github.com/lixohealthcareequipment/growth-ops/pkg/salesforce"
	"github.com/lixohealthcareequipment/growth-ops/pkg/zoho"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "rest":
		if err := config.Require("store.url", cfg.Store.URL, "store.key", cfg.Store.Key); err != nil {
			return nil, err
		}
		client := postgrest.NewClient(cfg.Store.URL, cfg.Store.Key,
			postgrest.WithSchema(cfg.Store.Schema),
			postgrest.WithRetries(cfg.Store.Retries),
		)
		return store.NewREST(client, cfg.Store.ChunkSize), nil
	case "postgres":
		if err := config.Require("store.database_url", cfg.Store.DatabaseURL); err != nil {
			return nil, err
		}
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "growth.db"
		}
		s, err := store.NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close() //nolint:errcheck
			return nil, err
		}
		return s, nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initCRMWriter returns nil when write-back is disabled.
func initCRMWriter() (crm.Writer, error) {
	if !cfg.Zoho.Writeback {
		return nil, nil
	}
	switch cfg.CRM.Provider {
	case "zoho":
		if err := config.Require(
			"zoho.client_id", cfg.Zoho.ClientID,
			"zoho.client_secret", cfg.Zoho.ClientSecret,
			"zoho.refresh_token", cfg.Zoho.RefreshToken,
		); err != nil {
			return nil, err
		}
		client := zoho.NewClient(zoho.Credentials{
			ClientID:     cfg.Zoho.ClientID,
			ClientSecret: cfg.Zoho.ClientSecret,
			RefreshToken: cfg.Zoho.RefreshToken,
		}, zoho.WithBaseURL(cfg.Zoho.BaseURL), zoho.WithAccountsURL(cfg.Zoho.AccountsURL))
		return crm.NewZoho(client), nil
	case "salesforce":
		client, err := initSalesforce()
		if err != nil {
			return nil, err
		}
		return crm.NewSalesforce(client), nil
	default:
		return nil, eris.Errorf("unsupported crm provider: %s", cfg.CRM.Provider)
	}
}

func initSalesforce() (salesforce.Client, error) {
	if err := config.Require(
		"salesforce.client_id", cfg.Salesforce.ClientID,
		"salesforce.username", cfg.Salesforce.Username,
		"salesforce.key_path", cfg.Salesforce.KeyPath,
	); err != nil {
		return nil, err
	}

	pemData, err := os.ReadFile(cfg.Salesforce.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce JWT private key")
	}

	return salesforce.Connect(salesforce.JWTCreds{
		LoginURL:   cfg.Salesforce.LoginURL,
		Username:   cfg.Salesforce.Username,
		ClientID:   cfg.Salesforce.ClientID,
		PrivateKey: string(pemData),
	})
}

// initLocker returns a Redis lock when redis.addr is set.
func initLocker() identity.Locker {
	if cfg.Redis.Addr == "" {
		return identity.NoopLocker{}
	}
	ttl := time.Duration(cfg.Redis.LockTTLSecs) * time.Second
	return identity.NewRedisLocker(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, ttl)
}

func initGoogleAds() (googleads.Client, error) {
	g := cfg.GoogleAds
	if err := config.Require(
		"google_ads.client_id", g.ClientID,
		"google_ads.client_secret", g.ClientSecret,
		"google_ads.refresh_token", g.RefreshToken,
		"google_ads.developer_token", g.DeveloperToken,
	); err != nil {
		return nil, err
	}
	return googleads.NewClient(googleads.Credentials{
		ClientID:        g.ClientID,
		ClientSecret:    g.ClientSecret,
		RefreshToken:    g.RefreshToken,
		DeveloperToken:  g.DeveloperToken,
		LoginCustomerID: g.LoginCustomerID,
	},
		googleads.WithBaseURL(g.BaseURL),
		googleads.WithTokenURL(g.TokenURL),
		googleads.WithRateLimit(g.RateLimit),
	), nil
}

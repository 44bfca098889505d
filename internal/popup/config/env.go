package config

import (
	"os"

	"github.com/joho/godotenv"
)

// parseEnv overlays Config with values from the process environment. A .env
// file in the working directory is loaded first when present; real
// environment variables win over the file.
//
// Recognized variables:
//
//	CLIPSMART_EXTENSION_ID
//	CLIPSMART_API_BASE_URL
//	CLIPSMART_DEV            ("1" or "true" enables test mode)
//	CLIPSMART_LOCAL_DSN
//	CLIPSMART_SYNC_REGION
//	CLIPSMART_SYNC_BUCKET
//	CLIPSMART_SYNC_PREFIX
//	CLIPSMART_SYNC_ENDPOINT
//	CLIPSMART_SYNC_ACCESS_KEY
//	CLIPSMART_SYNC_SECRET_KEY
func parseEnv(cfg *Config) {
	_ = godotenv.Load()

	setIfPresent := func(dst *string, name string) {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*dst = v
		}
	}

	setIfPresent(&cfg.ExtensionID, "CLIPSMART_EXTENSION_ID")
	setIfPresent(&cfg.APIBaseURL, "CLIPSMART_API_BASE_URL")
	setIfPresent(&cfg.LocalDSN, "CLIPSMART_LOCAL_DSN")
	setIfPresent(&cfg.SyncRegion, "CLIPSMART_SYNC_REGION")
	setIfPresent(&cfg.SyncBucket, "CLIPSMART_SYNC_BUCKET")
	setIfPresent(&cfg.SyncPrefix, "CLIPSMART_SYNC_PREFIX")
	setIfPresent(&cfg.SyncEndpoint, "CLIPSMART_SYNC_ENDPOINT")
	setIfPresent(&cfg.SyncAccessKey, "CLIPSMART_SYNC_ACCESS_KEY")
	setIfPresent(&cfg.SyncSecretKey, "CLIPSMART_SYNC_SECRET_KEY")

	if v, ok := os.LookupEnv("CLIPSMART_DEV"); ok {
		cfg.Development = v == "1" || v == "true"
	}
}

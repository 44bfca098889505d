package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/tibco87/clipsmart/internal/flagx"
	"github.com/tibco87/clipsmart/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify intervals either as strings like "1s" or
// as integer nanoseconds. After parsing, values are copied into the runtime
// Config (which uses time.Duration).
type JsonConfig struct {
	ExtensionID          string         `json:"extension_id"`
	APIBaseURL           string         `json:"api_base_url"`
	Development          *bool          `json:"development"`
	LocalDSN             string         `json:"local_dsn"`
	SyncRegion           string         `json:"sync_region"`
	SyncBucket           string         `json:"sync_bucket"`
	SyncPrefix           string         `json:"sync_prefix"`
	SyncEndpoint         string         `json:"sync_endpoint"`
	SyncAccessKey        string         `json:"sync_access_key"`
	SyncSecretKey        string         `json:"sync_secret_key"`
	FreeItemLimit        *int           `json:"free_item_limit"`
	FreeTranslationLimit *int           `json:"free_translation_limit"`
	PollInterval         timex.Duration `json:"poll_interval"`
	PollAttempts         *int           `json:"poll_attempts"`
	RecheckInterval      timex.Duration `json:"recheck_interval"`
}

// parseJson overlays Config with values loaded from a JSON file. The file
// path comes from the -c/-config flags via flagx.JsonConfigFlags; when no
// path is given nothing is loaded. Absent JSON fields leave the current
// values untouched. Panics on read or unmarshal errors.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	setIfPresent := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}

	setIfPresent(&cfg.ExtensionID, jc.ExtensionID)
	setIfPresent(&cfg.APIBaseURL, jc.APIBaseURL)
	setIfPresent(&cfg.LocalDSN, jc.LocalDSN)
	setIfPresent(&cfg.SyncRegion, jc.SyncRegion)
	setIfPresent(&cfg.SyncBucket, jc.SyncBucket)
	setIfPresent(&cfg.SyncPrefix, jc.SyncPrefix)
	setIfPresent(&cfg.SyncEndpoint, jc.SyncEndpoint)
	setIfPresent(&cfg.SyncAccessKey, jc.SyncAccessKey)
	setIfPresent(&cfg.SyncSecretKey, jc.SyncSecretKey)

	if jc.Development != nil {
		cfg.Development = *jc.Development
	}
	if jc.FreeItemLimit != nil {
		cfg.FreeItemLimit = *jc.FreeItemLimit
	}
	if jc.FreeTranslationLimit != nil {
		cfg.FreeTranslationLimit = *jc.FreeTranslationLimit
	}
	if jc.PollInterval.Duration != 0 {
		cfg.PollInterval = time.Duration(jc.PollInterval.Duration)
	}
	if jc.PollAttempts != nil {
		cfg.PollAttempts = *jc.PollAttempts
	}
	if jc.RecheckInterval.Duration != 0 {
		cfg.RecheckInterval = time.Duration(jc.RecheckInterval.Duration)
	}
}

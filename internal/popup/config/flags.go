package config

import (
	"flag"
	"os"

	"github.com/tibco87/clipsmart/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-e string   extension id on the payment service
//	-d string   sqlite path of the local store
//	-b string   sync bucket name (empty disables the sync tier)
//	-dev        request test-mode payment credentials
//
// Note: The function filters os.Args to only include the flags it knows
// about, using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-e", "-d", "-b", "-dev"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ExtensionID, "e", cfg.ExtensionID, "extension id on the payment service")
	fs.StringVar(&cfg.LocalDSN, "d", cfg.LocalDSN, "sqlite path of the local store")
	fs.StringVar(&cfg.SyncBucket, "b", cfg.SyncBucket, "sync bucket name")
	fs.BoolVar(&cfg.Development, "dev", cfg.Development, "request test-mode payment credentials")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}

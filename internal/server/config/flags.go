package config

import (
	"flag"
	"os"
	"time"

	"github.com/speakingcat21/filesoldier/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-t int      download token validity, minutes
//	-w int      rate limit window, minutes
//	-m int      max token requests per window
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-v string   verification endpoint (empty disables verification)
//	-k string   verification secret
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes using
//     flagx.FilterArgs, avoiding collisions with other components.
//   - Duration flags are accepted as integers in minutes and then converted
//     to time.Duration values.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-t", "-w", "-m", "-u", "-p", "-b", "-g", "-e", "-v", "-k"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	downloadTokenValidity := fs.Int("t", int(config.DownloadTokenValidity.Minutes()), "download_token_validity (in minutes)")
	rateLimitWindow := fs.Int("w", int(config.RateLimitWindow.Minutes()), "rate_limit_window (in minutes)")

	fs.IntVar(&config.RateLimitMax, "m", config.RateLimitMax, "max token requests per window")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 root bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 root region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	fs.StringVar(&config.VerificationEndpoint, "v", config.VerificationEndpoint, "verification endpoint")
	fs.StringVar(&config.VerificationSecret, "k", config.VerificationSecret, "verification secret")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.DownloadTokenValidity = time.Duration(*downloadTokenValidity) * time.Minute
	config.RateLimitWindow = time.Duration(*rateLimitWindow) * time.Minute
}

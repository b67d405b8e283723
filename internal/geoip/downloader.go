// Package geoip keeps a MaxMind GeoLite2 country database up to date and reads it.
package geoip

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/vitals/internal/atomicfile"
	"github.com/woozymasta/vitals/internal/vars"
)

// EnsureDB downloads the database from url when the file at path is missing
// or older than maxAge. An empty url only checks that the file exists.
func EnsureDB(ctx context.Context, path, url string, maxAge time.Duration) error {
	info, err := os.Stat(path)
	switch {
	case err == nil && time.Since(info.ModTime()) < maxAge:
		log.Debug().Str("path", path).Msg("GeoIP database is up to date")
		return nil
	case err == nil:
		log.Info().Str("path", path).Dur("age", time.Since(info.ModTime())).Msg("GeoIP database is outdated")
	case os.IsNotExist(err):
		log.Info().Str("path", path).Msg("GeoIP database missing")
	default:
		return fmt.Errorf("stat geoip database: %w", err)
	}

	if url == "" {
		if err != nil {
			return fmt.Errorf("geoip database %s not found and no download url set", path)
		}
		return nil
	}

	return download(ctx, path, url)
}

func download(ctx context.Context, path, url string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build geoip request: %w", err)
	}
	req.Header.Set("User-Agent", vars.UserAgent())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("download geoip database: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download geoip database: unexpected status %s", resp.Status)
	}

	if err := atomicfile.Write(path, resp.Body, 0o644); err != nil {
		return fmt.Errorf("store geoip database: %w", err)
	}

	log.Info().Str("path", path).Msg("GeoIP database downloaded")
	return nil
}

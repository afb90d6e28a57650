package utils

import (
	"context"
	"os"

	getter "github.com/hashicorp/go-getter"
	"golang.org/x/xerrors"
)

// DownloadToTempFile fetches src with go-getter, so any of its sources
// (file::, s3::, gcs::, git::, http) work. Archives are kept as downloaded;
// callers decompress themselves.
func DownloadToTempFile(ctx context.Context, src string) (string, error) {
	f, err := os.CreateTemp("", "dependency-check")
	if err != nil {
		return "", xerrors.Errorf("failed to create a temp file: %w", err)
	}
	if err = f.Close(); err != nil {
		return "", xerrors.Errorf("close error: %w", err)
	}

	if err = download(ctx, src, f.Name(), getter.ClientModeFile); err != nil {
		os.Remove(f.Name())
		return "", xerrors.Errorf("download error: %w", err)
	}

	return f.Name(), nil
}

// ReadSource downloads src to a temp file and returns its content.
func ReadSource(ctx context.Context, src string) ([]byte, error) {
	path, err := DownloadToTempFile(ctx, src)
	if err != nil {
		return nil, err
	}
	defer os.Remove(path)

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Errorf("unable to read %s: %w", path, err)
	}
	return b, nil
}

func download(ctx context.Context, src, dst string, mode getter.ClientMode) error {
	pwd, err := os.Getwd()
	if err != nil {
		return xerrors.Errorf("unable to get the current dir: %w", err)
	}

	// Build the client
	client := &getter.Client{
		Ctx:     ctx,
		Src:     src,
		Dst:     dst,
		Pwd:     pwd,
		Getters: getter.Getters,
		Mode:    mode,
		// a non-nil empty map disables go-getter's own decompression
		Decompressors: map[string]getter.Decompressor{},
	}

	if err = client.Get(); err != nil {
		return xerrors.Errorf("failed to download: %w", err)
	}

	return nil
}

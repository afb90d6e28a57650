package utils

import (
	"context"
	"crypto/rand"
	"log"
	"math"
	"math/big"
	"os"
	"time"

	"github.com/parnurzeal/gorequest"
	"golang.org/x/xerrors"
)

const fetchTimeout = 5 * time.Minute

// Wait returns the backoff before the i-th retry.
func Wait(i int) time.Duration {
	sleep := math.Pow(float64(i), 2) + float64(RandInt()%10)
	return time.Duration(sleep) * time.Second
}

// FetchURL returns HTTP response body with retry. Cancelling ctx stops
// retrying; a request already sent runs until fetchTimeout.
func FetchURL(ctx context.Context, url, apikey string, retry int) (res []byte, err error) {
	for i := 0; i <= retry; i++ {
		if i > 0 {
			wait := Wait(i)
			log.Printf("retry after %s\n", wait)
			if err = sleep(ctx, wait); err != nil {
				break
			}
		} else if err = ctx.Err(); err != nil {
			break
		}
		res, err = fetchURL(url, apikey)
		if err == nil {
			return res, nil
		}
	}
	return nil, xerrors.Errorf("failed to fetch URL: %w", err)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func RandInt() int {
	seed, _ := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	return int(seed.Int64())
}

func fetchURL(url, apikey string) ([]byte, error) {
	req := gorequest.New().Timeout(fetchTimeout).Get(url)
	if apikey != "" {
		req.Header.Add("api-key", apikey)
	}
	resp, body, errs := req.Type("text").EndBytes()
	if len(errs) > 0 {
		return nil, xerrors.Errorf("HTTP error. url: %s, err: %w", url, errs[0])
	}
	if resp.StatusCode != 200 {
		return nil, xerrors.Errorf("HTTP error. status code: %d, url: %s", resp.StatusCode, url)
	}
	return body, nil
}

func LookupEnv(key, defaultValue string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultValue
}

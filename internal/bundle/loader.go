package bundle

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rohmanhakim/mapfreeze/internal/metadata"
)

/*
Responsibilities

- Read a capture off disk: either the native bundle JSON or a HAR log
- Decode response bodies (base64 in both formats)
- Reject captures that cannot possibly produce an archive

Input Rules

- Native bundles may carry pre-classified tiles, raw request entries, or
  both; HAR logs only ever produce request entries
- HAR entries without a 2xx status or without a body are dropped here,
  they can never be tiles
- A capture with zero tiles and zero request entries is a fatal input
  error, not something to limp past
*/

type Loader struct {
	metadataSink metadata.MetadataSink
}

func NewLoader(metadataSink metadata.MetadataSink) Loader {
	return Loader{
		metadataSink: metadataSink,
	}
}

// LoadBundle reads a native capture bundle.
func (l *Loader) LoadBundle(path string) (CaptureBundle, *BundleError) {
	raw, rerr := os.ReadFile(path)
	if rerr != nil {
		err := &BundleError{
			Message:   fmt.Sprintf("reading %s: %v", path, rerr),
			Retryable: false,
			Cause:     ErrCauseUnreadable,
		}
		l.recordError("Loader.LoadBundle", path, err)
		return CaptureBundle{}, err
	}

	var b CaptureBundle
	if jerr := json.Unmarshal(raw, &b); jerr != nil {
		err := &BundleError{
			Message:   fmt.Sprintf("decoding %s: %v", path, jerr),
			Retryable: false,
			Cause:     ErrCauseMalformed,
		}
		l.recordError("Loader.LoadBundle", path, err)
		return CaptureBundle{}, err
	}

	if err := l.validate(&b, path, "Loader.LoadBundle"); err != nil {
		return CaptureBundle{}, err
	}
	return b, nil
}

// LoadHAR reads a HAR 1.2 log and turns its successful responses into
// request entries for the classifier.
func (l *Loader) LoadHAR(path string) (CaptureBundle, *BundleError) {
	raw, rerr := os.ReadFile(path)
	if rerr != nil {
		err := &BundleError{
			Message:   fmt.Sprintf("reading %s: %v", path, rerr),
			Retryable: false,
			Cause:     ErrCauseUnreadable,
		}
		l.recordError("Loader.LoadHAR", path, err)
		return CaptureBundle{}, err
	}

	var har harLog
	if jerr := json.Unmarshal(raw, &har); jerr != nil {
		err := &BundleError{
			Message:   fmt.Sprintf("decoding %s: %v", path, jerr),
			Retryable: false,
			Cause:     ErrCauseMalformed,
		}
		l.recordError("Loader.LoadHAR", path, err)
		return CaptureBundle{}, err
	}

	var b CaptureBundle
	dropped := 0
	for _, e := range har.Log.Entries {
		body, ok := harBody(e)
		if !ok {
			dropped++
			continue
		}
		b.Requests = append(b.Requests, RequestEntry{URL: e.Request.URL, Body: body})
	}
	if dropped > 0 {
		l.metadataSink.RecordWarning(
			"bundle",
			fmt.Sprintf("%d har entries had no usable response body", dropped),
		)
	}

	if err := l.validate(&b, path, "Loader.LoadHAR"); err != nil {
		return CaptureBundle{}, err
	}
	return b, nil
}

func (l *Loader) validate(b *CaptureBundle, path string, action string) *BundleError {
	if len(b.Tiles) == 0 && len(b.Requests) == 0 {
		err := &BundleError{
			Message:   fmt.Sprintf("%s contains no tiles and no request entries", path),
			Retryable: false,
			Cause:     ErrCauseEmptyBundle,
		}
		l.recordError(action, path, err)
		return err
	}
	return nil
}

func (l *Loader) recordError(action string, path string, err *BundleError) {
	l.metadataSink.RecordError(
		time.Now(),
		"bundle",
		action,
		mapBundleErrorToMetadataCause(err),
		err.Message,
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrPath, path),
		},
	)
}

// harBody extracts the decoded response body of one HAR entry, reporting
// false when the entry cannot be a tile.
func harBody(e harEntry) ([]byte, bool) {
	if e.Response.Status < 200 || e.Response.Status > 299 {
		return nil, false
	}
	text := e.Response.Content.Text
	if text == "" {
		return nil, false
	}
	if e.Response.Content.Encoding == "base64" {
		body, err := base64.StdEncoding.DecodeString(text)
		if err != nil || len(body) == 0 {
			return nil, false
		}
		return body, true
	}
	return []byte(text), true
}

package core

import (
	"fmt"
	"net/url"
	"strings"
)

// Manifest is the ordered list of relative asset paths needed to run offline.
type Manifest []string

// DefaultManifest is the asset list of the diary app.
var DefaultManifest = Manifest{
	"./",
	"./index.html",
	"./review.html",
	"./history.html",
	"./kids.html",
	"./settings.html",
	"./styles/style.css",
	"./scripts/app.js",
	"./scripts/recorder.js",
	"./scripts/tts.js",
	"./scripts/storage.js",
	"./scripts/speech-recognition.js",
	"./manifest.json",
	"./icons/icon-192.png",
	"./icons/icon-512.png",
}

// Resolve turns every path into an absolute URL under base.
// Absolute or empty entries are rejected.
func (m Manifest) Resolve(base *url.URL) ([]string, error) {
	if base == nil || !base.IsAbs() {
		return nil, fmt.Errorf("manifest base must be an absolute URL")
	}
	urls := make([]string, 0, len(m))
	for i, p := range m {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, fmt.Errorf("manifest entry %d is empty", i)
		}
		ref, err := url.Parse(p)
		if err != nil {
			return nil, fmt.Errorf("manifest entry %q: %w", p, err)
		}
		if ref.IsAbs() || ref.Host != "" {
			return nil, fmt.Errorf("manifest entry %q must be relative", p)
		}
		urls = append(urls, base.ResolveReference(ref).String())
	}
	return urls, nil
}

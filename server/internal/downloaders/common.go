package downloaders

import (
	"fmt"

	"github.com/vidfetch/vidfetch/server/internal"
	"github.com/vidfetch/vidfetch/server/internal/platform"
)

// Backends routes each supported platform to the backend serving it.
type Backends map[platform.Platform]Backend

func NewBackends(youtube, generic Backend) Backends {
	return Backends{
		platform.YouTube:   youtube,
		platform.Instagram: generic,
		platform.Facebook:  generic,
	}
}

// For returns the backend in charge of url.
func (b Backends) For(url string) (platform.Platform, Backend, error) {
	p := platform.Classify(url)
	if !p.Supported() {
		return p, nil, fmt.Errorf("%w: %s", internal.ErrInvalidURL, url)
	}

	backend, ok := b[p]
	if !ok || backend == nil {
		return p, nil, fmt.Errorf("%w: no backend for %s", internal.ErrInvalidURL, p)
	}

	return p, backend, nil
}

// AudioOptions is how many audio formats are offered for a platform.
// YouTube exposes a richer stream list than the generic extractor.
func AudioOptions(p platform.Platform) int {
	if p == platform.YouTube {
		return 3
	}
	return 1
}

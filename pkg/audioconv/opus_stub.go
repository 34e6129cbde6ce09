//go:build !opus

package audioconv

import (
	"errors"
	"io"
)

func decodeOpus(io.ReadSeeker) (clip, error) {
	return clip{}, errors.New("opus support not built in (build with -tags opus)")
}

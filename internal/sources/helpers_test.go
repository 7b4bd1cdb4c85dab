package sources_test

import (
	"errors"

	"github.com/uom-robota/robota-core/internal/model"
	"github.com/uom-robota/robota-core/internal/sources"
)

func commitHashes(commits []*model.Commit) []string {
	hashes := make([]string, len(commits))
	for i, c := range commits {
		hashes[i] = c.Hash
	}
	return hashes
}

func errorIsNotFound(err error) bool {
	return errors.Is(err, sources.ErrNotFound)
}

func transportKind(err error) sources.TransportErrorKind {
	var terr *sources.TransportError
	if errors.As(err, &terr) {
		return terr.Kind
	}
	return ""
}

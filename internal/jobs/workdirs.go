package jobs

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// staleAfter is how old an unfinished work directory must be before it is
// considered abandoned by a crashed run.
const staleAfter = 6 * time.Hour

// PruneWorkDirs removes transdoc-* scratch directories left behind in the
// work root.
func PruneWorkDirs(ctx JobContext) error {
	root := ctx.Config().Storage.Work
	if root == "" {
		root = os.TempDir()
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-staleAfter)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "transdoc-") {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(root, e.Name())
		if err := os.RemoveAll(path); err != nil {
			log.Warn().Err(err).Str("dir", path).Msg("could not remove stale work dir")
			continue
		}
		removed++
	}
	log.Info().Int("removed", removed).Str("root", root).Msg("pruned work directories")
	return nil
}

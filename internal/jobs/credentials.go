package jobs

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/vrsandeep/transdoc-go/internal/llm"
)

// RefreshCredentials reloads every stored API key into the client pool.
func RefreshCredentials(ctx JobContext) error {
	n, err := ReloadPool(ctx)
	if err != nil {
		return err
	}
	log.Info().Int("clients", n).Msg("credentials reloaded from store")
	return nil
}

// ReloadPool swaps the pool's client table for one built from the stored
// keys and returns the number of usable clients.
func ReloadPool(ctx JobContext) (int, error) {
	keys, err := ctx.Store().ListApiKeys()
	if err != nil {
		return 0, fmt.Errorf("list api keys: %w", err)
	}
	creds := make([]llm.Credential, 0, len(keys))
	for _, k := range keys {
		creds = append(creds, llm.CredentialFromApiKey(k))
	}
	return ctx.Pool().Refresh(creds), nil
}

package hubs

import (
	"fmt"
	"time"
)

// SweepExpiredGrace revokes every GRACE token whose window has elapsed.
// It returns the number of tokens revoked and the updated slice. Both the
// rotation pass and the agent poll run this before any other transition,
// so a stale GRACE token can never reach the accepted hash set.
func SweepExpiredGrace(tx InstallTx, tokens []HubToken, now time.Time) (int, []HubToken, error) {
	revoked := 0
	for i := range tokens {
		if tokens[i].Status != TokenGrace {
			continue
		}
		if tokens[i].GraceUntil == nil || tokens[i].GraceUntil.After(now) {
			continue
		}
		tokens[i].Status = TokenRevoked
		if err := tx.UpdateToken(&tokens[i]); err != nil {
			return revoked, tokens, fmt.Errorf("revoke token v%d: %w", tokens[i].Version, err)
		}
		revoked++
	}
	return revoked, tokens, nil
}

package memory

import (
	"testing"

	"southbag/internal/ledger"
	"southbag/internal/ledger/ledgertest"
)

func TestStore(t *testing.T) {
	ledgertest.Run(t, func(t *testing.T) ledger.Store {
		return New()
	})
}

package memory

import (
	"testing"

	"github.com/spigell/hh-assistant/internal/store"
	"github.com/spigell/hh-assistant/internal/store/storetest"
)

func TestStore(t *testing.T) {
	t.Parallel()

	storetest.Run(t, func(*testing.T) store.Store { return New() })
}

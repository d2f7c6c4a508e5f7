package cli

import (
	"os"
	"testing"

	"github.com/aretw0/enginegate/internal/testutils"
)

func TestMain(m *testing.M) {
	testutils.FakeEngineMain()
	os.Exit(m.Run())
}

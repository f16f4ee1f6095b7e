package factory

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/tictactoe-go/internal/dependencies/mocks"
	"github.com/mcoot/tictactoe-go/internal/events"
	"github.com/mcoot/tictactoe-go/internal/services/auth"
	"github.com/mcoot/tictactoe-go/internal/session"
	"github.com/mcoot/tictactoe-go/internal/storage/memory"
	"github.com/mcoot/tictactoe-go/internal/testutil"
)

// TestSecret signs tokens issued by a TestApp
const TestSecret = "test-secret"

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock     *mocks.MockClock
	MockRandom    *mocks.MockRandom
	MockPublisher *events.MemoryPublisher
}

// NewTestApp creates an App configured for testing with mocked dependencies
func NewTestApp() *TestApp {
	return NewTestAppWithSession(session.DefaultConfig())
}

// NewTestAppWithSession creates a TestApp with custom websocket session settings
func NewTestAppWithSession(sessionCfg session.Config) *TestApp {
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	mockRandom := mocks.NewMockRandom()
	publisher := events.NewMemoryPublisher()

	authCfg := auth.DefaultConfig()
	authCfg.Secret = TestSecret
	authCfg.BcryptCost = bcrypt.MinCost

	app := newWithDependencies(dependencies{
		store:      memory.New(),
		clock:      mockClock,
		random:     mockRandom,
		publisher:  publisher,
		registry:   prometheus.NewRegistry(),
		authCfg:    authCfg,
		sessionCfg: sessionCfg,
		logger:     testutil.NopLogger(),
	})

	return &TestApp{
		App:           app,
		MockClock:     mockClock,
		MockRandom:    mockRandom,
		MockPublisher: publisher,
	}
}

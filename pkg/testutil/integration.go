package testutil

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/ajitpratap0/tap-jotform/pkg/config"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// IntegrationTestSuite provides a fake API server, a temp directory and a
// context per test.
type IntegrationTestSuite struct {
	suite.Suite
	ctx     context.Context
	cancel  context.CancelFunc
	tempDir string
	API     *FakeJotform
}

// SetupTest runs before each test in the suite
func (s *IntegrationTestSuite) SetupTest() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), time.Minute)
	s.tempDir = s.T().TempDir()
	s.API = NewFakeJotform(s.T())
}

// TearDownTest runs after each test in the suite
func (s *IntegrationTestSuite) TearDownTest() {
	s.cancel()
}

// Context returns the test context
func (s *IntegrationTestSuite) Context() context.Context {
	return s.ctx
}

// TempDir returns the temporary directory path
func (s *IntegrationTestSuite) TempDir() string {
	return s.tempDir
}

// Config returns a configuration pointed at the fake API.
func (s *IntegrationTestSuite) Config() *config.Config {
	return TestConfig(s.API.URL)
}

// CreateTempFile creates a temporary file with content
func (s *IntegrationTestSuite) CreateTempFile(name string, content []byte) string {
	path := filepath.Join(s.tempDir, name)
	err := os.WriteFile(path, content, 0o644)
	require.NoError(s.T(), err)
	return path
}

package logging_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/cardsync/pkg/domain/types"
	"github.com/m-mizutani/cardsync/pkg/utils/logging"
	"github.com/m-mizutani/gt"
)

func TestConfigure(t *testing.T) {
	t.Cleanup(func() {
		gt.NoError(t, logging.Configure("text", "info", "stdout"))
	})

	t.Run("configure with json format to stdout", func(t *testing.T) {
		gt.NoError(t, logging.Configure("json", "info", "stdout"))
	})

	t.Run("configure with text format", func(t *testing.T) {
		gt.NoError(t, logging.Configure("text", "debug", "stderr"))
	})

	t.Run("configure with invalid format returns error", func(t *testing.T) {
		gt.Error(t, logging.Configure("invalid", "info", "stdout"))
	})

	t.Run("configure with invalid level returns error", func(t *testing.T) {
		gt.Error(t, logging.Configure("json", "invalid", "stdout"))
	})

	t.Run("secrets are masked", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.log")
		gt.NoError(t, logging.Configure("json", "info", path))

		type secrets struct {
			Workspace string
			Password  string `masq:"secret"`
		}

		logging.Default().Info("configured",
			slog.Any("board_key", types.BoardAPIKey("board-key-value")),
			slog.Any("token", types.GitHubToken("ghp_token_value")),
			slog.Any("secrets", secrets{Workspace: "ws-1", Password: "p4ssw0rd"}),
		)

		out := string(gt.R1(os.ReadFile(path)).NoError(t))
		gt.S(t, out).Contains("ws-1")
		gt.S(t, out).NotContains("board-key-value")
		gt.S(t, out).NotContains("ghp_token_value")
		gt.S(t, out).NotContains("p4ssw0rd")
	})
}

func TestDefault(t *testing.T) {
	logger := logging.Default()
	logger.Info("test message", "key", "value")
}

package updater

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// UpdateExecutable using the builtin function of yt-dlp
func UpdateExecutable(ctx context.Context, executable string) error {
	ctx, cancel := context.WithTimeout(ctx, time.Minute*2)
	defer cancel()

	cmd := exec.CommandContext(ctx, executable, "-U")

	out, err := cmd.CombinedOutput()
	slog.Info("downloader update", slog.String("output", strings.TrimSpace(string(out))))

	return err
}

// Version of the downloader executable, it must answer within 10 seconds.
func Version(ctx context.Context, executable string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	out, err := exec.CommandContext(ctx, executable, "--version").Output()
	if ctx.Err() != nil {
		return "", errors.New("requesting the downloader version took too long")
	}
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(out)), nil
}

package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinforge/regdoc-api/internal/models"
)

// GatewayTransport hands an assembled bundle to the external regulatory
// gateway and returns the tracking identifier assigned to it.
type GatewayTransport interface {
	Send(ctx context.Context, pkg *models.SubmissionPackage, bundlePath string) (string, error)
}

// DropDirTransport implements GatewayTransport against a filesystem drop
// directory polled by the agency connector. It stands in for the real ESG
// transport in environments without a gateway account.
type DropDirTransport struct {
	dropDir string
	logger  *zap.Logger
}

// NewDropDirTransport ensures the drop directory exists and returns the
// transport.
func NewDropDirTransport(dropDir string, logger *zap.Logger) (*DropDirTransport, error) {
	if dropDir == "" {
		dropDir = "./gateway-outbox"
	}
	if err := os.MkdirAll(dropDir, 0o755); err != nil {
		return nil, fmt.Errorf("create gateway drop directory: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DropDirTransport{dropDir: dropDir, logger: logger}, nil
}

// Send copies the bundle into the drop directory under a fresh tracking id.
// The gateway's acknowledgments arrive later through the event webhook.
func (t *DropDirTransport) Send(ctx context.Context, pkg *models.SubmissionPackage, bundlePath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	trackingID := newTrackingID()

	src, err := os.Open(bundlePath)
	if err != nil {
		return "", fmt.Errorf("open bundle: %w", err)
	}
	defer src.Close() //nolint:errcheck

	target := filepath.Join(t.dropDir, trackingID+filepath.Ext(bundlePath))
	dst, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("create drop file: %w", err)
	}
	defer dst.Close() //nolint:errcheck
	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("hand off bundle: %w", err)
	}

	t.logger.Sugar().Infow("bundle handed to gateway",
		"package_id", pkg.ID, "tracking_id", trackingID, "target", target)
	return trackingID, nil
}

func newTrackingID() string {
	return "TRK-" + strings.ToUpper(uuid.NewString()[:8]) + "-" + time.Now().UTC().Format("20060102")
}

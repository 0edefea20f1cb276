package video

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Avicted/callrelay/internal/media"
)

func classifyOpenError(err error) error {
	if errors.Is(err, os.ErrPermission) || strings.Contains(strings.ToLower(err.Error()), "permission") {
		return fmt.Errorf("open camera: %w: %w", media.ErrPermissionDenied, err)
	}
	return fmt.Errorf("open camera: %w: %w", media.ErrDeviceUnavailable, err)
}

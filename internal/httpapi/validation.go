// SPDX-License-Identifier: MIT

package httpapi

import (
	"io"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/videoforge/insights/internal/apperrors"
)

const (
	maxBodyBytes   = 10 << 20 // 10 MB
	maxParamsBytes = 1 << 20  // 1 MB
)

var allowedVideoExtensions = map[string]bool{
	".mp4":  true,
	".avi":  true,
	".mov":  true,
	".mkv":  true,
	".webm": true,
}

// validateVideoID rejects path-traversal sequences and control characters
// in a video_id taken from a URL path segment.
func validateVideoID(videoID string) error {
	if videoID == "" {
		return apperrors.Validation("video_id", "must not be empty")
	}
	if strings.Contains(videoID, "..") || strings.ContainsAny(videoID, "/\\") {
		return apperrors.Validation("video_id", "must not contain path separators or '..'")
	}
	for _, r := range videoID {
		if unicode.IsControl(r) {
			return apperrors.Validation("video_id", "must not contain control characters")
		}
	}
	return nil
}

// validateVideoPath rejects traversal sequences and enforces the
// recognized-extension allowlist for the progressive-processing endpoint.
func validateVideoPath(videoPath string) error {
	if videoPath == "" {
		return apperrors.Validation("video_path", "must not be empty")
	}
	if strings.Contains(videoPath, "..") {
		return apperrors.Validation("video_path", "must not contain '..'")
	}
	ext := strings.ToLower(filepath.Ext(videoPath))
	if !allowedVideoExtensions[ext] {
		return apperrors.Validation("video_path", "unrecognized video extension: "+ext)
	}
	return nil
}

// readLimitedJSON reads up to limit bytes from r and returns them, or a
// ValidationFailure if the body exceeds it.
func readLimitedJSON(r io.Reader, limit int64) ([]byte, error) {
	lr := io.LimitReader(r, limit+1)
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ValidationFailure, "read request body", err)
	}
	if int64(len(data)) > limit {
		return nil, apperrors.Validation("body", "request body exceeds size limit")
	}
	return data, nil
}

package storage

import (
	"regexp"
	"strings"

	"videogenie/internal/pkg/errors"
	"videogenie/internal/ports"
)

// Provider is the blob backend behind a Gateway.
type Provider = ports.StorageProvider

const (
	videoPrefix  = "videos/"
	avatarPrefix = "avatars/"
)

var avatarIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,127}$`)

// VideoKey is where the artifact of jobID lives.
func VideoKey(jobID string) string {
	return videoPrefix + jobID + ".mp4"
}

// AvatarKey maps an avatar id to its face image key. Ids with path
// separators or ".." are rejected.
func AvatarKey(avatarID string) (string, error) {
	if !ValidAvatarID(avatarID) {
		return "", errors.ValidationField("avatarId", "invalid avatar id: "+avatarID)
	}
	return avatarPrefix + avatarID + ".png", nil
}

func ValidAvatarID(id string) bool {
	return avatarIDPattern.MatchString(id) && !strings.Contains(id, "..")
}

package processor

import (
	"mime"
	"net/url"
	"path"
	"strings"
)

// ExtFromMime returns the file extension for an audio or video MIME type,
// or "" when unknown. Parameters such as charset are ignored.
func ExtFromMime(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch mt {
	case "audio/wav", "audio/x-wav", "audio/wave", "audio/vnd.wave":
		return ".wav"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/ogg":
		return ".ogg"
	case "audio/flac", "audio/x-flac":
		return ".flac"
	case "audio/mp4", "audio/x-m4a":
		return ".m4a"
	case "video/mp4":
		return ".mp4"
	default:
		return ""
	}
}

// voiceExt picks the extension for a downloaded voice track: the
// Content-Type first, then the URL path, then .wav.
func voiceExt(contentType, rawURL string) string {
	if ext := ExtFromMime(contentType); ext != "" {
		return ext
	}
	if u, err := url.Parse(rawURL); err == nil {
		switch ext := strings.ToLower(path.Ext(u.Path)); ext {
		case ".wav", ".mp3", ".ogg", ".flac", ".m4a":
			return ext
		}
	}
	return ".wav"
}

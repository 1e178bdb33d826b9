package utils

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// MaxUploadSize is max accepted audio file size
const MaxUploadSize = 50 * 1024 * 1024

//SupportAudioExt checks if audio ext is supported
func SupportAudioExt(ext string) bool {
	switch ext {
	case ".wav", ".mp3", ".mp4", ".m4a", ".ogg", ".webm", ".wma":
		return true
	}
	return false
}

// MakeValidateFileName drops any dirs from the name, replaces spaces,
// lowercases extension and prefixes the result with ID
func MakeValidateFileName(ID, fileName string) (string, error) {
	base := filepath.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if base == "." || base == "/" || base == ".." || strings.TrimSpace(base) == "" {
		return "", fmt.Errorf("wrong file name '%s'", fileName)
	}
	ext := filepath.Ext(base)
	name := strings.ReplaceAll(strings.TrimSuffix(base, ext), " ", "_")
	if name == "" {
		return "", fmt.Errorf("wrong file name '%s'", fileName)
	}
	res := name + strings.ToLower(ext)
	if ID == "" {
		return res, nil
	}
	return path.Join(ID, res), nil
}

// ParamTrue - returns true if string param indicates true value
func ParamTrue(prm string) bool {
	return strings.ToLower(prm) == "true" || prm == "1"
}

package domain

import (
	"path/filepath"
	"strings"
)

// ImageInput is one user-selected file. Data must not be modified after the
// input is added to a batch.
type ImageInput struct {
	Name string
	Data []byte
}

// Asset is one converted output.
type Asset struct {
	Name     string
	Data     []byte
	Format   Format
	MIMEType string
	Width    int
	Height   int
}

// AssetName derives "<stem>.<ext>" from an input name. The stem ends at the
// first dot of the base name, so "photo.final.png" becomes "photo.<ext>".
func AssetName(inputName string, f Format) string {
	base := filepath.Base(strings.ReplaceAll(inputName, "\\", "/"))
	stem, _, _ := strings.Cut(base, ".")
	if stem == "" || stem == "/" {
		stem = "image"
	}
	return stem + "." + f.Extension()
}

package services

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// qrImageSize is the edge length of rendered codes in pixels
const qrImageSize = 256

// RenderCodePNG renders code text as a base64-encoded PNG
func RenderCodePNG(text string) (string, error) {
	png, err := qrcode.Encode(text, qrcode.Medium, qrImageSize)
	if err != nil {
		return "", fmt.Errorf("failed to render code: %w", err)
	}
	return base64.StdEncoding.EncodeToString(png), nil
}

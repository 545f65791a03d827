package splice

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// Sniff reports the format of an encoded image. PNG, JPEG and GIF must
// carry a decodable header; WebP and BMP are recognised by signature.
func Sniff(data []byte) (string, bool) {
	if _, format, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		return format, true
	}
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return "webp", true
	case len(data) >= 26 && string(data[0:2]) == "BM":
		return "bmp", true
	}
	return "", false
}

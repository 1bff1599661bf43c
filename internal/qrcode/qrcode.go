// Package qrcode builds image URLs for an external QR code rendering service.
package qrcode

import (
	"net/url"
	"strconv"
	"strings"
)

// DefaultServiceURL is the public QR rendering endpoint used when none is configured.
const DefaultServiceURL = "https://api.qrserver.com/v1/create-qr-code/"

// Image sizes in pixels.
const (
	DefaultSize = 150
	LargeSize   = 280
	MinSize     = 50
	MaxSize     = 1000
)

const (
	background = "ffffff"
	foreground = "6a11cb"
)

// ClampSize keeps size within the range the service renders; zero selects DefaultSize.
func ClampSize(size int) int {
	switch {
	case size == 0:
		return DefaultSize
	case size < MinSize:
		return MinSize
	case size > MaxSize:
		return MaxSize
	default:
		return size
	}
}

// URL returns the image URL encoding data as a square QR code of the given size.
func URL(serviceURL, data string, size int) string {
	if serviceURL == "" {
		serviceURL = DefaultServiceURL
	}
	size = ClampSize(size)
	dim := strconv.Itoa(size)

	params := [][2]string{
		{"size", dim + "x" + dim},
		{"data", data},
		{"bgcolor", background},
		{"color", foreground},
	}

	// url.Values.Encode would sort the keys; they stay in this order.
	var b strings.Builder
	b.WriteString(serviceURL)
	b.WriteByte('?')
	for i, p := range params {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(p[0])
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p[1]))
	}
	return b.String()
}

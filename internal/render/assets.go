/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package render

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// AssetDecodeError reports an image asset that could not be decoded.
type AssetDecodeError struct {
	ID  string // drawable id, empty on import
	Err error
}

func (e *AssetDecodeError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("decode image asset %s: %v", e.ID, e.Err)
	}
	return fmt.Sprintf("decode image asset: %v", e.Err)
}

func (e *AssetDecodeError) Unwrap() error { return e.Err }

// DataURL encodes raw image bytes of the given format ("png", "jpeg", ...).
func DataURL(format string, data []byte) string {
	return "data:image/" + format + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// SplitDataURL returns the payload bytes of a base64 data URL.
func SplitDataURL(src string) ([]byte, error) {
	rest, ok := strings.CutPrefix(src, "data:")
	if !ok {
		return nil, fmt.Errorf("not a data URL")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, fmt.Errorf("data URL without payload")
	}
	if !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("data URL is not base64 encoded")
	}
	return base64.StdEncoding.DecodeString(payload)
}

// DecodeImage decodes any registered raster format.
func DecodeImage(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", &AssetDecodeError{Err: err}
	}
	return img, format, nil
}

// DecodeConfig reads the dimensions and format without decoding pixels.
func DecodeConfig(data []byte) (image.Config, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return image.Config{}, "", &AssetDecodeError{Err: err}
	}
	return cfg, format, nil
}

// DecodeDataURL decodes an image drawable's src.
func DecodeDataURL(src string) (image.Image, error) {
	data, err := SplitDataURL(src)
	if err != nil {
		return nil, &AssetDecodeError{Err: err}
	}
	img, _, err := DecodeImage(data)
	return img, err
}

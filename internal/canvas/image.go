/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package canvas

import (
	"context"
	"fmt"
	"log/slog"

	"goslides/internal/render"
	"goslides/internal/scene"
)

// AssetDecodeError is returned when imported bytes are not a decodable image.
type AssetDecodeError = render.AssetDecodeError

// ImportImage decodes data, embeds it as a data URL and adds it like
// AddDrawable, scaled down so its longest side fits the import bound. It returns
// "" and no error when the caller may not edit.
func (c *Controller) ImportImage(ctx context.Context, data []byte) (string, error) {
	if !c.Interactive() {
		return "", nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cfg, format, err := render.DecodeConfig(data)
	if err != nil {
		c.log.Warn("image import skipped", slog.Any("err", err))
		return "", err
	}
	// full decode catches truncated pixel data the header check misses
	if _, _, err := render.DecodeImage(data); err != nil {
		c.log.Warn("image import skipped", slog.Any("err", err))
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	maxDim := c.opts.ImageMaxDim
	if maxDim <= 0 {
		maxDim = scene.ImageMaxDim
	}
	d := scene.NewImage(render.DataURL(format, data), float32(cfg.Width), float32(cfg.Height), maxDim)
	id := c.AddDrawable(d)
	if id == "" {
		return "", fmt.Errorf("import image: slide %s no longer editable", c.slideID)
	}
	c.log.Info("image imported", slog.String("format", format), slog.Int("w", cfg.Width), slog.Int("h", cfg.Height))
	return id, nil
}

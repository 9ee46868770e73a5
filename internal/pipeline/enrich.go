package pipeline

import (
	"image"
	"log/slog"

	"github.com/dgallion1/docstruct/internal/node"
	"github.com/dgallion1/docstruct/internal/raster"
)

// EnrichVisualNodes crops the region of every image and table node out of
// img and attaches it as PNG data, rewriting the node's box to pixel
// coordinates. Nodes whose box is absent or invalid after transformation are
// left as they are. img must already be rotation-corrected.
func EnrichVisualNodes(nodes []node.Node, img image.Image, modelName string, scales raster.ScaleTable, log *slog.Logger) []node.Node {
	b := img.Bounds()
	scale := scales.Scale(modelName)

	out := make([]node.Node, len(nodes))
	for i, n := range nodes {
		out[i] = n
		v, ok := n.Content.(node.Visual)
		if !ok {
			continue
		}
		raw, ok := v.Box()
		if !ok {
			continue
		}

		box, valid := raster.TransformBBox(raw, b.Dx(), b.Dy(), scale)
		if !valid {
			log.Debug("skipping invalid bbox", "node_id", n.ID, "bbox", raw, "scale", scale)
			continue
		}
		data, err := raster.EncodePNG(raster.Crop(img, box))
		if err != nil {
			log.Warn("crop encode failed", "node_id", n.ID, "error", err)
			continue
		}
		out[i].Content = v.WithCrop(box, data)
	}
	return out
}

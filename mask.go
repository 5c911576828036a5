package yoloprep

// Segmentation mask rendering.

import (
	"image"
	"image/color"
	"image/draw"
	"log"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/llgcode/draw2d/draw2dimg"
	"github.com/pkg/errors"
)

// DefaultMaskFill is the gray level polygons are filled with on the white mask background.
const DefaultMaskFill = 128

// RenderMask draws every annotation of data as a filled polygon with gray level fill on a white
// image of the annotated size. Rectangles are drawn by their four corners. Shapes with fewer than 3
// corners are not drawn.
func RenderMask(data ImageAnnotations, fill uint8) (*image.Gray, error) {
	if err := checkDimensions(data.Width, data.Height); err != nil {
		return nil, err
	}

	bounds := image.Rect(0, 0, data.Width, data.Height)
	canvas := image.NewRGBA(bounds)
	draw.Draw(canvas, bounds, image.White, image.Point{}, draw.Src)

	gc := draw2dimg.NewGraphicContext(canvas)
	gc.SetFillColor(color.Gray{Y: fill})
	for _, a := range data.Annotations {
		corners := a.Corners()
		if len(corners) < 3 {
			continue
		}
		gc.BeginPath()
		gc.MoveTo(corners[0].X, corners[0].Y)
		for _, p := range corners[1:] {
			gc.LineTo(p.X, p.Y)
		}
		gc.Close()
		gc.Fill()
	}

	mask := image.NewGray(bounds)
	draw.Draw(mask, bounds, canvas, image.Point{}, draw.Src)
	return mask, nil
}

// RenderMasks renders a PNG mask for every LabelMe document in labelMeDir into outDir, along with a
// copy of the annotated image. The image is looked up in imageDir (labelMeDir if empty) by base
// name, and its actual size is used for the mask.
func RenderMasks(labelMeDir, imageDir, outDir string, fill uint8) (*Summary, error) {
	s := NewSummary()
	if imageDir == "" {
		imageDir = labelMeDir
	}
	docs, err := filesByExtInDir(labelMeDir, ".json")
	if err != nil {
		return s, errors.Wrap(ErrConfig, err.Error())
	}
	images, err := filesByExtInDir(imageDir, DefaultImageExts...)
	if err != nil {
		return s, errors.Wrap(ErrConfig, err.Error())
	}
	imagesByName := make(map[string]string, len(images))
	for _, img := range images {
		imagesByName[baseNoExt(img)] = img
	}
	if err := ensureDirs(outDir); err != nil {
		return s, err
	}

	for _, docPath := range docs {
		s.Images++

		img, ok := imagesByName[baseNoExt(docPath)]
		if !ok {
			log.Printf("No corresponding image file, skipping %q", docPath)
			s.skip(ErrMissingPair)
			continue
		}
		data, err := ReadLabelMe(docPath)
		if err != nil {
			log.Printf("Error while parsing, skipping %q: %v", docPath, err)
			s.skip(err)
			continue
		}
		cfg, _, err := decodeImageConfig(img)
		if err != nil {
			log.Printf("Cannot read the image size of %q, skipping: %v", img, err)
			s.skip(ErrMalformedDocument)
			continue
		}
		data.Width, data.Height = cfg.Width, cfg.Height

		mask, err := RenderMask(data, fill)
		if err != nil {
			s.skip(err)
			continue
		}
		if err := imaging.Save(mask, withExt(outDir, img, ".png")); err != nil {
			return s, errors.Wrapf(err, "cannot save the mask for %q", img)
		}
		if filepath.Ext(img) != ".png" {
			if err := copyFile(img, filepath.Join(outDir, filepath.Base(img))); err != nil {
				return s, err
			}
		}

		for _, a := range data.Annotations {
			s.ClassCounts[a.Label]++
		}
		s.Objects += len(data.Annotations)
		s.Converted++
	}

	return s, nil
}

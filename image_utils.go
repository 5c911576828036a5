package yoloprep

import (
	"fmt"
	"image"
	_ "image/jpeg" // Register decoders for image.DecodeConfig.
	_ "image/png"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// decodeImageConfig opens the file at path and returns the results of image.DecodeConfig.
func decodeImageConfig(path string) (config image.Config, format string, err error) {
	file, err := os.Open(path)
	if err != nil {
		return image.Config{}, "", err
	}
	defer file.Close()

	return image.DecodeConfig(file)
}

// encodingExt returns the output file extension for the requested encoding.
func encodingExt(encoding string) (string, error) {
	switch strings.ToLower(encoding) {
	case "jpg", "jpeg":
		return ".jpg", nil
	case "png":
		return ".png", nil
	case "bmp":
		return ".bmp", nil
	}
	return "", fmt.Errorf("unsupported output encoding %q", encoding)
}

// saveImage saves img to path, with the encoding selected by the file extension of path.
func saveImage(path string, img image.Image, jpegQuality int) error {
	return imaging.Save(img, path, imaging.JPEGQuality(jpegQuality))
}

// ConvertResult counts the outcome of ConvertImages.
type ConvertResult struct {
	Converted int
	Failed    int
}

// ConvertImages decodes every image with file extension fromExt (e.g. ".bmp") in srcDir and writes
// it to outDir re-encoded as encoding {jpg, png, bmp}, keeping the base file name.
//
// Images that fail to decode are logged and counted, they do not stop the conversion.
func ConvertImages(srcDir, outDir, fromExt, encoding string, jpegQuality int) (ConvertResult, error) {
	var res ConvertResult

	fileExt, err := encodingExt(encoding)
	if err != nil {
		return res, err
	}
	if jpegQuality < 1 || jpegQuality > 100 {
		return res, fmt.Errorf("invalid JPEG quality %d, must be in [1, 100]", jpegQuality)
	}
	files, err := filesByExtInDir(srcDir, fromExt)
	if err != nil {
		return res, err
	}
	if len(files) == 0 {
		log.Printf("No %s files in %q", fromExt, srcDir)
		return res, nil
	}
	if err := ensureDirs(outDir); err != nil {
		return res, err
	}

	// Limit the number of goroutines in flight, as they load potentially large images into memory.
	numTasks := 2 * runtime.NumCPU()
	if len(files) < numTasks {
		numTasks = len(files)
	}
	workQueue := make(chan string, 2*numTasks)

	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(numTasks)
	for i := 0; i < numTasks; i++ {
		go func() {
			defer wg.Done()
			for path := range workQueue {
				err := convertImage(path, withExt(outDir, path, fileExt), jpegQuality)

				mu.Lock()
				if err != nil {
					log.Printf("Failed to convert %q: %v", path, err)
					res.Failed++
				} else {
					res.Converted++
				}
				mu.Unlock()
			}
		}()
	}

	for _, path := range files {
		workQueue <- path
	}
	close(workQueue)
	wg.Wait()

	log.Printf("Converted %d images to %s in %s, %d failed", res.Converted, fileExt,
		filepath.Clean(outDir), res.Failed)
	return res, nil
}

func convertImage(src, dst string, jpegQuality int) error {
	img, err := imaging.Open(src)
	if err != nil {
		return err
	}
	return saveImage(dst, img, jpegQuality)
}

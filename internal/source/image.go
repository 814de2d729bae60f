package source

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ImageExtensions - растровые форматы, которые умеет декодировать ImageSource.
var ImageExtensions = []string{".jpg", ".jpeg", ".png", ".webp", ".tif", ".tiff", ".bmp"}

// IsImage сообщает, похож ли путь на поддерживаемую картинку.
func IsImage(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range ImageExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// ImageSource - одна картинка как документ из одной страницы.
type ImageSource struct {
	path string
}

func NewImageSource(path string) (*ImageSource, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%s: ожидался файл, а не каталог", path)
	}
	return &ImageSource{path: path}, nil
}

func (s *ImageSource) PageCount() int {
	return 1
}

// PageSize возвращает размер уже с учётом EXIF-ориентации, поэтому
// картинку приходится декодировать целиком.
func (s *ImageSource) PageSize(index int) (image.Point, error) {
	img, err := s.RenderPage(index, 0)
	if err != nil {
		return image.Point{}, err
	}
	return img.Bounds().Size(), nil
}

// RenderPage декодирует картинку и поворачивает её по тегу EXIF Orientation;
// dpi не используется.
func (s *ImageSource) RenderPage(index int, dpi int) (image.Image, error) {
	if index != 0 {
		return nil, fmt.Errorf("%s: страница %d вне диапазона", s.path, index+1)
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := imaging.Decode(f, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	return img, nil
}

func (s *ImageSource) Close() error {
	return nil
}

package source

import (
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// Source - документ, из которого берутся кадры: PDF или одиночная картинка.
type Source interface {
	PageCount() int
	PageSize(index int) (image.Point, error)
	RenderPage(index int, dpi int) (image.Image, error)
	Close() error
}

// Open выбирает реализацию по расширению файла.
func Open(path string) (Source, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return NewFitzPDFSource(path)
	}
	return NewImageSource(path)
}

type FitzPDFSource struct {
	doc  *fitz.Document
	path string
}

func NewFitzPDFSource(path string) (*FitzPDFSource, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("открытие PDF %s: %w", path, err)
	}
	return &FitzPDFSource{doc: doc, path: path}, nil
}

func (f *FitzPDFSource) PageCount() int {
	return f.doc.NumPage()
}

// PageSize возвращает размер страницы в точках (72 dpi).
func (f *FitzPDFSource) PageSize(index int) (image.Point, error) {
	rect, err := f.doc.Bound(index)
	if err != nil {
		return image.Point{}, err
	}
	return rect.Size(), nil
}

func (f *FitzPDFSource) RenderPage(index int, dpi int) (image.Image, error) {
	// Отдельный документ на каждый рендер: fitz.Document не потокобезопасен
	workerDoc, err := fitz.New(f.path)
	if err != nil {
		return nil, err
	}
	defer workerDoc.Close()
	return workerDoc.ImageDPI(index, float64(dpi))
}

func (f *FitzPDFSource) Close() error {
	return f.doc.Close()
}

package system

import (
	"image"
	"sync"
)

// ImagePool переиспользует *image.RGBA одинаковой геометрии: при сборке
// все масштабированные кадры имеют размер кадра 0, поэтому буферы
// возвращаются в пул после кодирования и берутся снова следующей сборкой.
type ImagePool struct {
	pools map[image.Point]*sync.Pool
	mu    sync.RWMutex
}

var globalPool = NewImagePool()

func NewImagePool() *ImagePool {
	return &ImagePool{pools: make(map[image.Point]*sync.Pool)}
}

// GetImage возвращает RGBA-буфер размера size из общего пула.
func GetImage(size image.Point) *image.RGBA {
	return globalPool.Get(size)
}

// PutImage возвращает буфер в общий пул.
func PutImage(img *image.RGBA) {
	globalPool.Put(img)
}

// Get не обнуляет пиксели: вызывающий перерисовывает буфер целиком.
func (p *ImagePool) Get(size image.Point) *image.RGBA {
	p.mu.RLock()
	pool, exists := p.pools[size]
	p.mu.RUnlock()

	if !exists {
		p.mu.Lock()
		pool, exists = p.pools[size]
		if !exists {
			pool = &sync.Pool{
				New: func() interface{} {
					return image.NewRGBA(image.Rectangle{Max: size})
				},
			}
			p.pools[size] = pool
		}
		p.mu.Unlock()
	}

	return pool.Get().(*image.RGBA)
}

func (p *ImagePool) Put(img *image.RGBA) {
	if img == nil || img.Rect.Min != (image.Point{}) {
		return
	}
	p.mu.RLock()
	pool, exists := p.pools[img.Rect.Size()]
	p.mu.RUnlock()

	if exists {
		pool.Put(img)
	}
}

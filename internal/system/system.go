package system

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// ManifestExtensions перечисляет расширения, которые принимает FindLatestManifest.
var ManifestExtensions = []string{".json", ".yaml", ".yml"}

// FindLatestManifest возвращает самый свежий манифест в папке dir.
func FindLatestManifest(dir string) (string, error) {
	return FindLatestFile(dir, ManifestExtensions)
}

// FindLatestFile ищет в dir файл с одним из расширений exts и самой
// поздней датой изменения.
func FindLatestFile(dir string, exts []string) (string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var latestFile string
	var latestTime time.Time

	for _, f := range files {
		if f.IsDir() || !hasExtension(f.Name(), exts) {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(latestTime) {
			latestTime = info.ModTime()
			latestFile = filepath.Join(dir, f.Name())
		}
	}

	if latestFile == "" {
		return "", fmt.Errorf("в папке %s не найдено файлов (%s)", dir, strings.Join(exts, ", "))
	}

	return latestFile, nil
}

func hasExtension(name string, exts []string) bool {
	lower := strings.ToLower(name)
	for _, ext := range exts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// Оценка памяти на один параллельный энкодер: сырой RGBA-кадр, который
// пишется в stdin ffmpeg, плюс рабочие буферы x265 (~4 кадра).
const encoderFrameCopies = 5

// RecommendedWorkers подбирает число параллельных энкодеров: не больше
// физических ядер, не больше кадров и столько, сколько влезает в доступную
// память при кадре width x height.
func RecommendedWorkers(frames, width, height int) int {
	workers, err := cpu.Counts(false)
	if err != nil || workers <= 0 {
		workers = runtime.NumCPU()
	}

	if vm, err := mem.VirtualMemory(); err == nil && width > 0 && height > 0 {
		perWorker := uint64(width) * uint64(height) * 4 * encoderFrameCopies
		if fit := int(vm.Available / perWorker); fit < workers {
			workers = fit
		}
	}

	if frames > 0 && workers > frames {
		workers = frames
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}

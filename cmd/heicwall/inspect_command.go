package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ivlev/heicwall/internal/heif"
	"github.com/ivlev/heicwall/internal/timeline"
	"github.com/ivlev/heicwall/internal/wallpaper"
)

func newInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "inspect <file.heic>",
		Short:       "Показать кадры и расписание HEIC-обоев",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return inspect(cmd.OutOrStdout(), args[0], data)
		},
	}
}

func inspect(out io.Writer, name string, data []byte) error {
	info, err := heif.Parse(data)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	images := info.Images()

	fmt.Fprintf(out, "[*] %s: %s, бренд %s, кадров %d\n", name, humanize.Bytes(uint64(len(data))), info.MajorBrand, len(images))

	var tl *timeline.Timeline
	xmp, err := heif.ReadXMP(data)
	switch {
	case errors.Is(err, heif.ErrNoXMP):
		fmt.Fprintln(out, "[!] Нет XMP: файл не содержит расписания")
	case err != nil:
		return err
	default:
		tl, err = timeline.Decode(xmp)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	// Записи ti идут в порядке пакета, а не кадров: ищем по Index.
	byIndex := map[int][]timeline.Entry{}
	if tl != nil {
		for _, e := range tl.Entries {
			byIndex[e.Index] = append(byIndex[e.Index], e)
		}
	}

	rows := make([][]string, 0, len(images))
	for i, it := range images {
		base := []string{
			strconv.Itoa(i),
			strconv.FormatUint(uint64(it.ID), 10),
			fmt.Sprintf("%dx%d", it.Width, it.Height),
			humanize.Bytes(it.Size()),
		}
		entries := byIndex[i]
		if len(entries) == 0 {
			rows = append(rows, append(base, "", "", ""))
			continue
		}
		for _, e := range entries {
			role := ""
			if e.Role != wallpaper.AppearanceNone {
				role = e.Role.String()
			}
			row := append(append([]string(nil), base...),
				wallpaper.FormatClock(e.Seconds()),
				strconv.FormatFloat(e.Offset, 'f', 6, 64),
				role)
			rows = append(rows, row)
		}
	}
	headers := []string{"#", "Item", "Размер", "Байт", "Время", "Смещение", "Тема"}
	aligns := []columnAlignment{alignRight, alignRight, alignRight, alignRight, alignLeft, alignRight, alignLeft}
	fmt.Fprintln(out, renderTable(headers, rows, aligns, isTerminal(out)))

	if tl != nil {
		for _, e := range tl.Entries {
			if e.Index >= len(images) {
				fmt.Fprintf(out, "[!] Запись расписания %s ссылается на кадр %d, а кадров %d\n",
					wallpaper.FormatClock(e.Seconds()), e.Index, len(images))
			}
		}
		for i := range images {
			if len(byIndex[i]) == 0 {
				fmt.Fprintf(out, "[!] Кадр %d не упомянут в расписании\n", i)
			}
		}
	}
	return nil
}

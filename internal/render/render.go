// Package render draws a laid-out month grid into a raster image and
// resolves the fonts used for drawing.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"time"

	"github.com/fogleman/gg"

	"calpost/internal/layout"
)

// Style carries the configurable appearance of the rendered calendar.
type Style struct {
	Width  int
	Height int

	Background color.NRGBA
	Text       color.NRGBA
	Header     color.NRGBA // weekday header strip background

	// TitleFormat selects the title band wording: "english" renders
	// "June 2024", "korean" renders "6월 2024년".
	TitleFormat string
}

// Fixed accents, matching the palette the calendar has always used.
var (
	titleColor    = color.NRGBA{R: 0x4A, G: 0x4A, B: 0x4A, A: 0xFF}
	sundayColor   = color.NRGBA{R: 0xC1, G: 0x6A, B: 0x64, A: 0xFF}
	saturdayColor = color.NRGBA{R: 0x51, G: 0x88, B: 0xB7, A: 0xFF}
	dimmedColor   = color.NRGBA{R: 0xC8, G: 0xC8, B: 0xC8, A: 0xFF}
	dividerColor  = color.NRGBA{R: 0xEA, G: 0xEA, B: 0xE0, A: 0xFF}
	moreColor     = color.NRGBA{R: 0x8A, G: 0x8A, B: 0x86, A: 0xFF}
)

// defaultPillColor is used when an event carries no provider color.
var defaultPillColor = color.NRGBA{R: 0xDC, G: 0xDC, B: 0xF0, A: 0xFF}

// pillPalette maps Google Calendar colorId values to pastel fills.
var pillPalette = map[string]color.NRGBA{
	"1":  {R: 0xE6, G: 0xDC, B: 0xFA, A: 0xFF},
	"2":  {R: 0xFF, G: 0xDC, B: 0xC8, A: 0xFF},
	"3":  {R: 0xC8, G: 0xE6, B: 0xFF, A: 0xFF},
	"4":  {R: 0xFF, G: 0xF0, B: 0xC8, A: 0xFF},
	"5":  {R: 0xF0, G: 0xDC, B: 0xFA, A: 0xFF},
	"6":  {R: 0xFF, G: 0xDC, B: 0xD2, A: 0xFF},
	"7":  {R: 0xDC, G: 0xFA, B: 0xDC, A: 0xFF},
	"8":  {R: 0xFA, G: 0xC8, B: 0xDC, A: 0xFF},
	"9":  {R: 0xE6, G: 0xE6, B: 0xF0, A: 0xFF},
	"10": {R: 0xDC, G: 0xF0, B: 0xC8, A: 0xFF},
	"11": {R: 0xFF, G: 0xDC, B: 0xC8, A: 0xFF},
}

// DefaultStyle mirrors the configuration defaults.
func DefaultStyle() Style {
	return Style{
		Width:       1200,
		Height:      1400,
		Background:  color.NRGBA{R: 0xFD, G: 0xFE, B: 0xF0, A: 0xFF},
		Text:        color.NRGBA{R: 0x4B, G: 0x4B, B: 0x4A, A: 0xFF},
		Header:      color.NRGBA{R: 0xEA, G: 0xEA, B: 0xE0, A: 0xFF},
		TitleFormat: "english",
	}
}

// ParseHexColor parses "#RRGGBB" (leading # optional) into an NRGBA.
func ParseHexColor(s string) (color.NRGBA, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) != 6 {
		return color.NRGBA{}, fmt.Errorf("invalid hex color %q", s)
	}
	var r, g, b uint8
	if _, err := fmt.Sscanf(h, "%02x%02x%02x", &r, &g, &b); err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid hex color %q", s)
	}
	return color.NRGBA{R: r, G: g, B: b, A: 0xFF}, nil
}

// Layout constants, shared by the grid band and the pill geometry.
const (
	marginX      = 40
	titleX       = 80
	titleY       = 40
	headerHeight = 50
	headerGap    = 10
	bottomMargin = 40

	pillPadX     = 6
	pillTopBase  = 32
	pillStride   = 34
	pillHeight   = 28
	pillRadius   = 12
	minPillWidth = 40
)

// Render draws the title band, weekday headers, day cells and event
// pills into a new image. Out-of-month cells are dimmed; pill text that
// does not fit is truncated with an ellipsis, never drawn outside the
// pill. Render has no side effects beyond the returned image.
func Render(grid layout.MonthGrid, segments []layout.Segment, style Style, faces Faces) image.Image {
	dc := gg.NewContext(style.Width, style.Height)
	dc.SetColor(style.Background)
	dc.Clear()

	drawTitle(dc, grid, style, faces)

	gridStartY := float64(titleY + 80)
	gridWidth := float64(style.Width - 2*marginX)
	gridX := float64(marginX)
	dayWidth := gridWidth / 7

	drawWeekdayHeader(dc, grid, style, faces, gridX, gridStartY, gridWidth, dayWidth)

	calStartY := gridStartY + headerHeight + headerGap
	gridHeight := float64(style.Height) - calStartY - bottomMargin
	rows := len(grid.Weeks)
	if rows < 6 {
		rows = 6 // keep cell height stable between 5- and 6-week months
	}
	cellHeight := gridHeight / float64(rows)

	drawDayCells(dc, grid, style, faces, gridX, calStartY, gridWidth, dayWidth, cellHeight)

	for _, seg := range segments {
		drawSegment(dc, seg, style, faces, gridX, calStartY, dayWidth, cellHeight)
	}

	return dc.Image()
}

// EncodePNG serializes a rendered image.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding png: %w", err)
	}
	return buf.Bytes(), nil
}

// TitleText returns the title band wording for the grid's month.
func TitleText(grid layout.MonthGrid, format string) (monthText, yearText string) {
	if format == "korean" {
		return fmt.Sprintf("%d월", int(grid.Month.Month)), fmt.Sprintf("%d년", grid.Month.Year)
	}
	return grid.Month.Month.String(), fmt.Sprintf("%d", grid.Month.Year)
}

func drawTitle(dc *gg.Context, grid layout.MonthGrid, style Style, faces Faces) {
	monthText, yearText := TitleText(grid, style.TitleFormat)

	dc.SetFontFace(faces.Title)
	dc.SetColor(titleColor)
	ascent := float64(faces.Title.Metrics().Ascent.Ceil())
	baseline := float64(titleY) + ascent
	dc.DrawString(monthText, titleX, baseline)

	monthWidth, _ := dc.MeasureString(monthText)
	dc.SetFontFace(faces.Year)
	dc.DrawString(yearText, titleX+monthWidth+10, baseline)
}

func drawWeekdayHeader(dc *gg.Context, grid layout.MonthGrid, style Style, faces Faces, gridX, gridStartY, gridWidth, dayWidth float64) {
	dc.SetColor(style.Header)
	dc.DrawRoundedRectangle(gridX, gridStartY, gridWidth, headerHeight, 8)
	dc.Fill()

	dc.SetFontFace(faces.Header)
	headerAscent := float64(faces.Header.Metrics().Ascent.Ceil())
	baseline := gridStartY + headerHeight/2 + headerAscent/2 - 2

	for i := 0; i < 7; i++ {
		wd := time.Weekday((int(grid.WeekStart) + i) % 7)
		label := strings.ToUpper(wd.String()[:3])

		dc.SetColor(weekdayColor(wd, style))
		labelWidth, _ := dc.MeasureString(label)
		x := gridX + float64(i)*dayWidth + (dayWidth-labelWidth)/2
		dc.DrawString(label, x, baseline)
	}
}

func drawDayCells(dc *gg.Context, grid layout.MonthGrid, style Style, faces Faces, gridX, calStartY, gridWidth, dayWidth, cellHeight float64) {
	dc.SetFontFace(faces.Day)
	dayAscent := float64(faces.Day.Metrics().Ascent.Ceil())

	for w, week := range grid.Weeks {
		rowTop := calStartY + float64(w)*cellHeight
		if w > 0 {
			dc.SetColor(dividerColor)
			dc.SetLineWidth(1)
			dc.DrawLine(gridX, rowTop, gridX+gridWidth, rowTop)
			dc.Stroke()
		}

		for c, cell := range week {
			if cell.InCurrentMonth {
				dc.SetColor(weekdayColor(cell.Date.Weekday(), style))
			} else {
				dc.SetColor(dimmedColor)
			}
			x := gridX + float64(c)*dayWidth + 8
			dc.DrawString(fmt.Sprintf("%d", cell.Date.Day()), x, rowTop+8+dayAscent)
		}
	}

	// Closing divider under the last week.
	lastY := calStartY + float64(len(grid.Weeks))*cellHeight
	dc.SetColor(dividerColor)
	dc.SetLineWidth(1)
	dc.DrawLine(gridX, lastY, gridX+gridWidth, lastY)
	dc.Stroke()
}

func drawSegment(dc *gg.Context, seg layout.Segment, style Style, faces Faces, gridX, calStartY, dayWidth, cellHeight float64) {
	top := calStartY + float64(seg.WeekIndex)*cellHeight + pillTopBase + float64(seg.Row)*pillStride
	left := gridX + float64(seg.StartCol)*dayWidth + pillPadX
	right := gridX + float64(seg.EndCol()+1)*dayWidth - pillPadX

	if right-left < minPillWidth {
		center := (left + right) / 2
		left = center - minPillWidth/2
		right = center + minPillWidth/2
	}

	dc.SetFontFace(faces.Event)
	metrics := faces.Event.Metrics()
	ascent := float64(metrics.Ascent.Ceil())
	descent := float64(metrics.Descent.Ceil())
	baseline := top + (pillHeight+ascent-descent)/2

	if seg.IsOverflow() {
		// Overflow indicators are plain text so they read as a summary,
		// not another event.
		text := TruncateToWidth(dc, fmt.Sprintf("+%d more", seg.MoreCount), right-left-2*pillPadX)
		if text == "" {
			return
		}
		textWidth, _ := dc.MeasureString(text)
		dc.SetColor(moreColor)
		dc.DrawString(text, left+(right-left-textWidth)/2, baseline)
		return
	}

	dc.SetColor(pillColor(seg.Event.ColorID))
	dc.DrawRoundedRectangle(left, top, right-left, pillHeight, pillRadius)
	dc.Fill()

	text := TruncateToWidth(dc, seg.Event.Title, right-left-2*pillPadX)
	if text == "" {
		return
	}
	textWidth, _ := dc.MeasureString(text)
	dc.SetColor(style.Text)
	dc.DrawString(text, left+(right-left-textWidth)/2, baseline)
}

// TruncateToWidth shortens s so that it fits maxWidth with the current
// font face, appending an ellipsis when anything was cut. Returns ""
// when not even the ellipsis fits.
func TruncateToWidth(dc *gg.Context, s string, maxWidth float64) string {
	if maxWidth <= 0 {
		return ""
	}
	if w, _ := dc.MeasureString(s); w <= maxWidth {
		return s
	}

	runes := []rune(s)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		candidate := string(runes) + "…"
		if w, _ := dc.MeasureString(candidate); w <= maxWidth {
			return candidate
		}
	}
	if w, _ := dc.MeasureString("…"); w <= maxWidth {
		return "…"
	}
	return ""
}

func weekdayColor(wd time.Weekday, style Style) color.NRGBA {
	switch wd {
	case time.Sunday:
		return sundayColor
	case time.Saturday:
		return saturdayColor
	default:
		return style.Text
	}
}

func pillColor(colorID string) color.NRGBA {
	if c, ok := pillPalette[colorID]; ok {
		return c
	}
	return defaultPillColor
}

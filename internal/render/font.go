package render

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"

	appLog "calpost/internal/log"
)

// Script names the writing system the calendar must be able to draw.
// Event titles in a script the chosen font cannot cover come out as
// tofu boxes, which is a rendering defect, so font selection probes
// actual glyph coverage instead of trusting file names.
type Script string

const (
	ScriptLatin    Script = "latin"
	ScriptHangul   Script = "hangul"
	ScriptKana     Script = "kana"
	ScriptHan      Script = "han"
	ScriptCyrillic Script = "cyrillic"
	ScriptGreek    Script = "greek"
)

// probeText holds representative runes per script. Digits and basic
// Latin are always required on top of these: day numbers and the title
// band use them regardless of the event script.
var probeText = map[Script]string{
	ScriptLatin:    "AZaz",
	ScriptHangul:   "가힣한글",
	ScriptKana:     "あんアン",
	ScriptHan:      "日月年",
	ScriptCyrillic: "АЯая",
	ScriptGreek:    "ΑΩαω",
}

const baseProbe = "0189+. "

// ParseScript validates a configured script name.
func ParseScript(name string) (Script, error) {
	s := Script(strings.ToLower(strings.TrimSpace(name)))
	if s == "" {
		return ScriptLatin, nil
	}
	if _, ok := probeText[s]; !ok {
		return "", fmt.Errorf("unknown script %q", name)
	}
	return s, nil
}

// FontAsset is a candidate font file, already read into memory so that
// resolution stays a pure function over its inputs.
type FontAsset struct {
	Name string
	Data []byte
}

// FontResolutionError means no available asset can draw the required
// script. Fatal: a calendar with unreadable titles has no value.
type FontResolutionError struct {
	Script Script
	Tried  []string
}

func (e *FontResolutionError) Error() string {
	return fmt.Sprintf("no usable font for script %q (tried %s)",
		e.Script, strings.Join(e.Tried, ", "))
}

// ResolveFont returns the first asset whose glyph table covers the
// probe runes for the script. Assets that fail to parse or lack
// coverage are skipped with a log line; if none qualifies the result
// is a FontResolutionError.
func ResolveFont(script Script, assets []FontAsset) (*sfnt.Font, string, error) {
	probe, ok := probeText[script]
	if !ok {
		return nil, "", fmt.Errorf("unknown script %q", script)
	}
	probe += baseProbe

	tried := make([]string, 0, len(assets))
	for _, asset := range assets {
		tried = append(tried, asset.Name)

		f, err := opentype.Parse(asset.Data)
		if err != nil {
			appLog.Error("font asset unparseable, skipping", err, "asset", asset.Name)
			continue
		}
		if missing := missingGlyph(f, probe); missing != 0 {
			appLog.Info("font asset lacks required glyphs, skipping",
				"asset", asset.Name, "script", string(script), "rune", fmt.Sprintf("%q", missing))
			continue
		}
		return f, asset.Name, nil
	}

	return nil, "", &FontResolutionError{Script: script, Tried: tried}
}

// missingGlyph returns the first rune of probe the font has no glyph
// for, or 0 if all are covered.
func missingGlyph(f *sfnt.Font, probe string) rune {
	var buf sfnt.Buffer
	for _, r := range probe {
		gi, err := f.GlyphIndex(&buf, r)
		if err != nil || gi == 0 {
			return r
		}
	}
	return 0
}

// LoadAssets reads font files from disk. Unreadable paths are skipped
// with a log line so a bad entry in the config does not mask the
// bundled fallback.
func LoadAssets(paths []string) []FontAsset {
	assets := make([]FontAsset, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			appLog.Error("font file unreadable, skipping", err, "path", p)
			continue
		}
		assets = append(assets, FontAsset{Name: p, Data: data})
	}
	return assets
}

// Faces bundles the sized font faces the renderer draws with.
type Faces struct {
	Title  font.Face // month name
	Year   font.Face // year next to the month name
	Header font.Face // weekday header strip
	Day    font.Face // day-of-month numbers
	Event  font.Face // event pill text
}

// NewFaces derives all renderer faces from one resolved font.
func NewFaces(f *sfnt.Font) (Faces, error) {
	sizes := []float64{60, 20, 20, 20, 18}
	faces := make([]font.Face, len(sizes))
	for i, size := range sizes {
		face, err := opentype.NewFace(f, &opentype.FaceOptions{
			Size:    size,
			DPI:     72,
			Hinting: font.HintingFull,
		})
		if err != nil {
			return Faces{}, fmt.Errorf("building %gpt face: %w", size, err)
		}
		faces[i] = face
	}
	return Faces{
		Title:  faces[0],
		Year:   faces[1],
		Header: faces[2],
		Day:    faces[3],
		Event:  faces[4],
	}, nil
}

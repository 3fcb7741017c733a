package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"manga-patcher/internal/logger"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

// Family is a font style name accepted in patch requests.
type Family string

const (
	FamilyRegular Family = "regular"
	FamilyBold    Family = "bold"
	FamilyItalic  Family = "italic"
)

// fontFiles maps each family to its file under the font directory.
var fontFiles = map[Family]string{
	FamilyRegular: "animeace.ttf",
	FamilyBold:    "animeace_b.ttf",
	FamilyItalic:  "animeace_i.ttf",
}

// ParseFamily maps a requested font type to a Family. Unknown names resolve
// to FamilyRegular.
func ParseFamily(s string) Family {
	f := Family(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := fontFiles[f]; ok {
		return f
	}
	return FamilyRegular
}

// FontDescriptor selects a face for rendering.
type FontDescriptor struct {
	Family Family
	SizePx int
}

// Validate checks the size.
func (d FontDescriptor) Validate() error {
	if d.SizePx <= 0 {
		return fmt.Errorf("font size must be > 0, got %d", d.SizePx)
	}
	return nil
}

var (
	fallbackOnce sync.Once
	fallbackFont *truetype.Font
)

// Fallback returns the built-in Go Regular font.
func Fallback() *truetype.Font {
	fallbackOnce.Do(func() {
		f, err := truetype.Parse(goregular.TTF)
		if err != nil {
			panic(fmt.Sprintf("embedded font is invalid: %v", err))
		}
		fallbackFont = f
	})
	return fallbackFont
}

// Fonts resolves families to parsed TrueType fonts under a directory.
// Parsed fonts are cached; lookups never fail.
type Fonts struct {
	dir string

	mu     sync.Mutex
	loaded map[Family]*truetype.Font
}

// NewFonts creates a registry reading from dir.
func NewFonts(dir string) *Fonts {
	return &Fonts{
		dir:    dir,
		loaded: make(map[Family]*truetype.Font),
	}
}

// Dir returns the font directory.
func (f *Fonts) Dir() string {
	return f.dir
}

// Font returns the font for family, falling back to regular for unknown
// families and to the built-in font when the file cannot be used.
func (f *Fonts) Font(family Family) *truetype.Font {
	if _, ok := fontFiles[family]; !ok {
		family = FamilyRegular
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if ft, ok := f.loaded[family]; ok {
		return ft
	}

	ft, err := f.load(family)
	if err != nil {
		log := logger.WithComponent("render")
		log.Warn().
			Err(err).
			Str("family", string(family)).
			Msg("Font unavailable, using built-in default")
		ft = Fallback()
	}
	f.loaded[family] = ft
	return ft
}

func (f *Fonts) load(family Family) (*truetype.Font, error) {
	if f.dir == "" {
		return nil, fmt.Errorf("no font directory configured")
	}
	path := filepath.Join(f.dir, fontFiles[family])
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read font: %w", err)
	}
	ft, err := truetype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font %s: %w", path, err)
	}
	return ft, nil
}

// Face returns a new face for d. Faces are not safe for concurrent use, so
// every render gets its own.
func (f *Fonts) Face(d FontDescriptor) font.Face {
	return truetype.NewFace(f.Font(d.Family), &truetype.Options{
		Size: float64(d.SizePx),
		DPI:  72,
	})
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"manga-patcher/internal/app"
	"manga-patcher/internal/config"
	"manga-patcher/internal/logger"
	"manga-patcher/internal/patch"
	"manga-patcher/internal/render"
	"manga-patcher/internal/version"
	"manga-patcher/pkg/colorutil"
	"manga-patcher/pkg/geometry"

	"github.com/spf13/cobra"
)

var patchCmd = &cobra.Command{
	Use:   "patch [region-image]",
	Short: "Clean a captured region and render translated text onto it",
	Long: `Run the patch pipeline on a local image: remove the printed text, draw the
translated lines centred on the region (or on the polygon's bounding box) and
write the result as PNG.

Cleaner settings come from the same environment variables as serve.`,
	Example: `  # Replace a speech bubble's text
  manga-patcher patch bubble.png -t "Hey!" -t "Over here!" -o patch.png

  # White text with a black outline inside a polygon
  manga-patcher patch bubble.png -t "BOOM" --text-color "#ffffff" \
      --stroke-color "#000000" --stroke-width 2 --polygon "2,2;60,2;60,40;2,40"

  # Text only, on a transparent canvas
  manga-patcher patch bubble.png -t "..." --alpha -o overlay.png`,
	Args: cobra.ExactArgs(1),
	RunE: runPatch,
}

func init() {
	rootCmd.AddCommand(patchCmd)

	patchCmd.Flags().StringArrayP("text", "t", nil, "Translated line (repeatable)")
	patchCmd.Flags().Int("font-size", 24, "Font size in pixels")
	patchCmd.Flags().String("font", string(render.FamilyRegular), "Font family: regular, bold or italic")
	patchCmd.Flags().String("text-color", "#000000", "Text colour as #rrggbb")
	patchCmd.Flags().String("stroke-color", "", "Outline colour as #rrggbb (default: no outline)")
	patchCmd.Flags().Int("stroke-width", 0, "Outline width in pixels")
	patchCmd.Flags().String("polygon", "", `Bubble polygon as "x,y;x,y;..." in region pixels`)
	patchCmd.Flags().Bool("alpha", false, "Render on a transparent canvas instead of cleaning")
	patchCmd.Flags().Int("threshold", patch.DefaultCleanerThreshold, "Cleaner text threshold (0-255)")
	patchCmd.Flags().StringP("output", "o", "patch.png", "Output PNG path")
}

func runPatch(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("patch")

	lines, _ := cmd.Flags().GetStringArray("text")
	fontSize, _ := cmd.Flags().GetInt("font-size")
	family, _ := cmd.Flags().GetString("font")
	textHex, _ := cmd.Flags().GetString("text-color")
	strokeHex, _ := cmd.Flags().GetString("stroke-color")
	strokeWidth, _ := cmd.Flags().GetInt("stroke-width")
	polyArg, _ := cmd.Flags().GetString("polygon")
	alpha, _ := cmd.Flags().GetBool("alpha")
	threshold, _ := cmd.Flags().GetInt("threshold")
	outputPath, _ := cmd.Flags().GetString("output")

	textColor, err := colorutil.ParseHex(textHex)
	if err != nil {
		return fmt.Errorf("--text-color: %w", err)
	}
	var strokePtr *string
	if strokeHex != "" {
		strokePtr = &strokeHex
	}
	strokeColor, err := colorutil.ParseOptionalHex(strokePtr)
	if err != nil {
		return fmt.Errorf("--stroke-color: %w", err)
	}
	poly, err := parsePolygon(polyArg)
	if err != nil {
		return fmt.Errorf("--polygon: %w", err)
	}

	region, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read region: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	c, pinger, err := buildCleaner(cfg)
	if err != nil {
		return err
	}
	state := app.NewState(cfg.CleanerMode, c, version.BuildID)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if !alpha {
		loadCtx, cancel := context.WithTimeout(ctx, cfg.ModelLoadTimeout)
		defer cancel()
		task := state.Supervisor().Start(loadCtx, app.TaskCleaner, app.CleanerLoader(c, pinger, app.DefaultPingInterval))
		if err := task.Wait(loadCtx); err != nil {
			return fmt.Errorf("cleaner not ready: %w", err)
		}
	}

	renderer := render.NewRenderer(render.NewFonts(cfg.FontDir))
	gen := patch.NewGenerator(c, renderer, state)
	res, err := gen.Generate(ctx, patch.PatchRequest{
		Region: region,
		Lines:  lines,
		Font: render.FontDescriptor{
			Family: render.ParseFamily(family),
			SizePx: fontSize,
		},
		Style: render.Style{
			TextColor:   textColor,
			StrokeColor: strokeColor,
			StrokeWidth: strokeWidth,
		},
		Polygon:          poly,
		AlphaBackground:  alpha,
		CleanerThreshold: threshold,
	})
	if err != nil {
		return err
	}

	if err := os.WriteFile(outputPath, res.PNG, 0o644); err != nil {
		return fmt.Errorf("failed to write patch: %w", err)
	}
	log.Info().
		Str("output", outputPath).
		Int("width", res.Width).
		Int("height", res.Height).
		Int("channels", res.Channels).
		Str("text_color", colorutil.Hex(textColor)).
		Msg("Patch written")
	return nil
}

// parsePolygon parses "x,y;x,y;...". An empty string is no polygon.
func parsePolygon(s string) (geometry.Polygon, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var poly geometry.Polygon
	for i, pair := range strings.Split(s, ";") {
		vals, err := parseFloats(pair, 2, 2)
		if err != nil {
			return nil, fmt.Errorf("point %d: %w", i, err)
		}
		poly = append(poly, geometry.Point2D{X: vals[0], Y: vals[1]})
	}
	return poly, nil
}

// parseFloats parses a comma separated list of lo to hi numbers.
func parseFloats(s string, lo, hi int) ([]float64, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) < lo || len(parts) > hi {
		return nil, fmt.Errorf("expected %d-%d comma separated numbers, got %q", lo, hi, s)
	}
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", p)
		}
		out[i] = v
	}
	return out, nil
}

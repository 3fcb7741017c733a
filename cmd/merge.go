package cmd

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"

	"manga-patcher/internal/logger"
	"manga-patcher/internal/patch"

	"github.com/spf13/cobra"
)

var mergeCmd = &cobra.Command{
	Use:   "merge [page-image] [patch@x,y[,w,h] ...]",
	Short: "Composite patches onto a page",
	Long: `Composite patch images onto a page at the given top-left positions. When a
width and height are given the patch is resized first. Patches that do not fit
inside the page are skipped. The output keeps the page's format.`,
	Example: `  manga-patcher merge page.jpg p1.png@120,80 p2.png@300.5,410,64,32 -o merged.jpg`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runMerge,
}

func init() {
	rootCmd.AddCommand(mergeCmd)

	mergeCmd.Flags().StringP("output", "o", "", "Output path (default: <page>.merged.<ext>)")
}

// overlaySpec is one parsed patch@x,y[,w,h] argument.
type overlaySpec struct {
	Path   string
	X, Y   float64
	Width  *int
	Height *int
}

func runMerge(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("merge")
	outputPath, _ := cmd.Flags().GetString("output")

	page, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read page: %w", err)
	}

	req := patch.MergeRequest{Page: page}
	for _, arg := range args[1:] {
		spec, err := parseOverlay(arg)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(spec.Path)
		if err != nil {
			return fmt.Errorf("failed to read patch: %w", err)
		}
		req.Overlays = append(req.Overlays, patch.Overlay{
			Image:  data,
			X:      spec.X,
			Y:      spec.Y,
			Width:  spec.Width,
			Height: spec.Height,
		})
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	res, err := patch.NewCompositor().Merge(ctx, req)
	if err != nil {
		return err
	}

	if outputPath == "" {
		outputPath = mergedPath(args[0], string(res.Format))
	}
	if err := os.WriteFile(outputPath, res.Data, 0o644); err != nil {
		return fmt.Errorf("failed to write merged page: %w", err)
	}
	for _, s := range res.Skipped {
		log.Warn().Int("index", s.Index).Str("patch", args[s.Index+1]).Str("reason", s.Reason).Msg("Patch skipped")
	}
	log.Info().
		Str("output", outputPath).
		Str("format", string(res.Format)).
		Int("applied", res.Applied).
		Int("skipped", len(res.Skipped)).
		Msg("Page merged")
	return nil
}

// parseOverlay parses "path@x,y" or "path@x,y,w,h". The last '@' separates
// the path so paths may contain '@'.
func parseOverlay(arg string) (overlaySpec, error) {
	i := strings.LastIndex(arg, "@")
	if i <= 0 {
		return overlaySpec{}, fmt.Errorf("patch %q: expected path@x,y[,w,h]", arg)
	}
	vals, err := parseFloats(arg[i+1:], 2, 4)
	if err != nil {
		return overlaySpec{}, fmt.Errorf("patch %q: %w", arg, err)
	}
	spec := overlaySpec{Path: arg[:i], X: vals[0], Y: vals[1]}
	switch len(vals) {
	case 2:
	case 4:
		w, h := int(math.Round(vals[2])), int(math.Round(vals[3]))
		spec.Width, spec.Height = &w, &h
	default:
		return overlaySpec{}, fmt.Errorf("patch %q: size needs both width and height", arg)
	}
	return spec, nil
}

// mergedPath derives page.merged.<ext> from the page path.
func mergedPath(page, format string) string {
	ext := format
	if ext == "jpeg" {
		ext = "jpg"
	}
	base := page
	if i := strings.LastIndex(page, "."); i > strings.LastIndex(page, "/") {
		base = page[:i]
	}
	return base + ".merged." + ext
}

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/kozaktomas/photo-dedup/internal/features"
	"github.com/kozaktomas/photo-dedup/internal/fingerprint"
	"github.com/spf13/cobra"
)

var hashCmd = &cobra.Command{
	Use:   "hash <image-or-folder>...",
	Short: "Print perceptual hashes of images",
	Long: `Print the pHash and dHash of images.

Folders are expanded to the images they contain. When exactly two images are
given, their Hamming distances are printed as well, which helps tuning
--phash-threshold.

Examples:
  photo-dedup hash ./scans
  photo-dedup hash a.jpg b.jpg
  photo-dedup hash ./scans --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runHash,
}

func init() {
	rootCmd.AddCommand(hashCmd)

	hashCmd.Flags().Bool("recursive", false, "Include images in subfolders")
	hashCmd.Flags().Bool("json", false, "Output as JSON")
}

func runHash(cmd *cobra.Command, args []string) error {
	paths, err := expandImagePaths(args, mustGetBool(cmd, "recursive"))
	if err != nil {
		return err
	}

	batch := fingerprint.ImageInfoBatch{Images: make([]fingerprint.ImageInfo, 0, len(paths))}
	for _, path := range paths {
		batch.Images = append(batch.Images, hashFile(path))
	}
	batch.Count = len(batch.Images)

	if mustGetBool(cmd, "json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(batch)
	}
	printHashes(os.Stdout, batch.Images)
	return nil
}

// expandImagePaths replaces folders with the images they contain.
func expandImagePaths(args []string, recursive bool) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		found, err := features.ScanFolder(arg, recursive)
		if err != nil {
			return nil, err
		}
		paths = append(paths, found...)
	}
	return paths, nil
}

// hashFile never fails; errors are recorded on the returned info.
func hashFile(path string) fingerprint.ImageInfo {
	info := fingerprint.ImageInfo{Path: path}
	data, err := os.ReadFile(path) //nolint:gosec // path is given by the user
	if err != nil {
		info.Error = err.Error()
		return info
	}
	img, err := features.DecodeImage(data)
	if err != nil {
		info.Error = err.Error()
		return info
	}
	b := img.Bounds()
	info.Width, info.Height = b.Dx(), b.Dy()

	h := fingerprint.HashImage(img)
	info.PHash, info.DHash = h.PHash, h.DHash
	info.PHashBits, info.DHashBits = h.PHashBits, h.DHashBits
	return info
}

func printHashes(w io.Writer, images []fingerprint.ImageInfo) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tSIZE\tPHASH\tDHASH")
	for _, img := range images {
		if img.Error != "" {
			fmt.Fprintf(tw, "%s\t-\terror: %s\t\n", img.Path, img.Error)
			continue
		}
		fmt.Fprintf(tw, "%s\t%dx%d\t%s\t%s\n", img.Path, img.Width, img.Height, img.PHash, img.DHash)
	}
	tw.Flush()

	if len(images) == 2 && images[0].Error == "" && images[1].Error == "" {
		a, b := images[0], images[1]
		fmt.Fprintf(w, "\npHash distance: %d bits\n", fingerprint.HammingDistance(a.PHashBits, b.PHashBits))
		fmt.Fprintf(w, "dHash distance: %d bits\n", fingerprint.HammingDistance(a.DHashBits, b.DHashBits))
	}
}

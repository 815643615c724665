package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vmgr-dev/vmgr/internal/images"
)

var imagesBackups bool

var imagesCmd = &cobra.Command{
	Use:   "images",
	Short: "List disk images",
	Long:  `List the disk images in the configured base images directory, or its backups with --backups.`,
	RunE:  runImages,
}

func init() {
	imagesCmd.Flags().BoolVarP(&imagesBackups, "backups", "b", false, "list backup images instead")

	rootCmd.AddCommand(imagesCmd)
}

func runImages(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	lib, err := images.New(cfg.BaseImagesDirectory)
	if err != nil {
		return err
	}

	var entries []images.Entry
	if imagesBackups {
		entries, err = lib.ListBackups()
	} else {
		entries, err = lib.List()
	}
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Println("No images found.")
		return nil
	}

	// Plain names when piped, so the output stays script-friendly.
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		for _, e := range entries {
			fmt.Println(e.Name)
		}
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tSIZE")
	_, _ = fmt.Fprintln(w, "----\t----")
	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", e.Name, units.HumanSize(float64(e.Size)))
	}
	_ = w.Flush()
	return nil
}

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/paperdesk/paperdesk/internal/ingest"
	"github.com/paperdesk/paperdesk/internal/paper"
	"github.com/paperdesk/paperdesk/internal/paper/splitter"
	"github.com/paperdesk/paperdesk/pkg/logger"
	"github.com/spf13/cobra"
)

// splitOutput is the JSON form of a split result. Image bytes are reported
// by size only.
type splitOutput struct {
	File       string            `json:"file"`
	Paragraphs int               `json:"paragraphs"`
	Sections   map[string]string `json:"sections"`
	ImageSizes []int             `json:"imageSizes"`
	Tables     []string          `json:"tables"`
}

func newSplitCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "split <file>",
		Short: "Split a document into sections",
		Long: `Read a .txt, .md, .html, .pdf or .docx file and print the section mapping
and the distinct images and tables the splitter found, numbered in order of
first appearance.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			paras, err := ingest.ReadFile(f, filepath.Base(path))
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			res := splitter.Split(paras)
			logger.Debugf("split %s: %d paragraphs, %d images, %d tables", path, len(paras), len(res.Images), len(res.Tables))

			out := splitOutput{
				File:       path,
				Paragraphs: len(paras),
				Sections:   res.Sections,
				ImageSizes: make([]int, 0, len(res.Images)),
				Tables:     res.Tables,
			}
			for _, img := range res.Images {
				out.ImageSizes = append(out.ImageSizes, len(img))
			}
			if out.Tables == nil {
				out.Tables = []string{}
			}

			w := cmd.OutOrStdout()
			switch output {
			case "json":
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			case "text":
				for _, name := range paper.SectionNames() {
					fmt.Fprintf(w, "== %s ==\n", name)
					if body := strings.TrimRight(out.Sections[name], "\n"); body != "" {
						fmt.Fprintln(w, body)
					}
				}
				fmt.Fprintf(w, "\nparagraphs: %d  images: %d  tables: %d\n", out.Paragraphs, len(out.ImageSizes), len(out.Tables))
				return nil
			}
			return fmt.Errorf("unknown output format %q", output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format (text, json)")
	return cmd
}

package commands

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xdh1129/medassist/cmd/medassist/internal/config"
	"github.com/xdh1129/medassist/pkg/agent"
	"github.com/xdh1129/medassist/pkg/gen"
)

var flagImage string

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Run the pipeline once and print the answer",
	Long: `Run the pipeline once in batch mode and print the answer.

With --image, the imaging-analysis stage runs first and its report is
printed ahead of the answer.

Examples:
  medassist ask "What does a normal chest x-ray look like?"
  medassist ask --image scan.jpg "Any abnormalities?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&flagImage, "image", "", "path to a medical image to analyze")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	setupLogger()

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	pipeline, err := cfg.Pipeline(cmd.Context())
	if err != nil {
		return err
	}

	var image *gen.Blob
	if flagImage != "" {
		data, err := os.ReadFile(flagImage)
		if err != nil {
			return fmt.Errorf("read image: %w", err)
		}
		if len(data) == 0 {
			return fmt.Errorf("image file is empty: %s", flagImage)
		}
		mimeType := mime.TypeByExtension(filepath.Ext(flagImage))
		if !strings.HasPrefix(mimeType, "image/") {
			mimeType = "image/jpeg"
		}
		image = &gen.Blob{MIMEType: mimeType, Data: data}
	}

	st := agent.NewState(strings.Join(args, " "), image)
	if err := pipeline.Run(cmd.Context(), st); err != nil {
		return err
	}

	if st.Report != "" {
		fmt.Println("--- Imaging report ---")
		fmt.Println(st.Report)
		fmt.Println()
	}
	fmt.Println(st.Answer)
	return nil
}

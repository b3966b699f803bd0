package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/patient-predict-server/internal/domain"
	"github.com/patient-predict-server/internal/service"
)

var (
	predictInput domain.PatientInput
	predictAge   int
	predictJSON  bool
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Predict treatment, recovery days and outcome for one patient",
	Example: `  predictctl predict --area North --diagnosis Flu --gender Male \
    --age 34 --month March --severity Moderate`,
	Args: cobra.NoArgs,
	RunE: runPredict,
}

var formCmd = &cobra.Command{
	Use:   "form",
	Short: "Show every form field with its accepted values",
	Args:  cobra.NoArgs,
	RunE:  runForm,
}

var vocabularyCmd = &cobra.Command{
	Use:   "vocabulary [field]",
	Short: "List the accepted categories of a field",
	Args:  cobra.ExactArgs(1),
	RunE:  runVocabulary,
}

func init() {
	flags := predictCmd.Flags()
	flags.StringVar(&predictInput.PatientArea, "area", "", "patient area")
	flags.StringVar(&predictInput.Diagnosis, "diagnosis", "", "diagnosis")
	flags.StringVar(&predictInput.Gender, "gender", "", "gender")
	flags.IntVar(&predictAge, "age", domain.DefaultAge, "age in years (0-100)")
	flags.StringVar(&predictInput.Month, "month", "", "month of admission")
	flags.StringVar(&predictInput.Severity, "severity", "", "severity")
	flags.BoolVar(&predictJSON, "json", false, "print the result as JSON")
}

func runPredict(cmd *cobra.Command, args []string) error {
	input := predictInput
	input.Age = domain.IntPtr(predictAge)

	predictor, cleanup, err := service.Build(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := predictor.Predict(cmd.Context(), &input)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if predictJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Fprintf(out, "Treatment:     %s\n", result.Treatment)
	fmt.Fprintf(out, "Recovery days: %d\n", result.RecoveryDays)
	fmt.Fprintf(out, "Outcome:       %s\n", result.Outcome)
	return nil
}

func runForm(cmd *cobra.Command, args []string) error {
	predictor, cleanup, err := service.Build(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	out := cmd.OutOrStdout()
	form := predictor.Form()
	fmt.Fprintf(out, "Artifacts %s\n", form.ArtifactVersion)
	for _, field := range form.Fields {
		if field.Categories == nil {
			fmt.Fprintf(out, "  %-13s %d..%d (default %d)\n", field.Field, *field.Min, *field.Max, *field.Default)
			continue
		}
		fmt.Fprintf(out, "  %-13s %s\n", field.Field, strings.Join(field.Categories, ", "))
	}
	return nil
}

func runVocabulary(cmd *cobra.Command, args []string) error {
	predictor, cleanup, err := service.Build(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	categories, err := predictor.Vocabulary(domain.Field(args[0]))
	if err != nil {
		return err
	}
	for _, c := range categories {
		fmt.Fprintln(cmd.OutOrStdout(), c)
	}
	return nil
}

package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/schoolfacts/internal/core"
	"github.com/JonMunkholm/schoolfacts/internal/runner"
)

var exportPath string

// runCmd executes one pipeline run
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline once",
	Long:  `Extract, transform and load once. Exits non-zero when the run fails; the FAIL row is still recorded.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportPath != "" {
			cfg.Pipeline.ExportCSV = exportPath
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		r, st, err := openRunner(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		res, err := r.Run(ctx, runner.TriggerCLI)
		if err != nil {
			return fmt.Errorf("%s: %w", core.FormatUserError(err), err)
		}

		printSummary(cmd.OutOrStdout(), res)
		if res.AuditErr != nil {
			return fmt.Errorf("run %s succeeded but was not recorded: %w", res.RunID, res.AuditErr)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&exportPath, "export", "", "Also write the fact table to this CSV file (overrides EXPORT_CSV)")
}

func printSummary(w io.Writer, res *core.Result) {
	m := res.Metrics
	fmt.Fprintf(w, "run %s %s in %.2fs\n", res.RunID, res.Entry.Status, res.Entry.DurationSeconds())
	fmt.Fprintf(w, "  registros leidos      %d (alumnos %d, calificaciones %d, matriculas %d)\n",
		m.RegistrosLeidos, m.AlumnosRows, m.CalificacionesRows, m.MatriculasRows)
	fmt.Fprintf(w, "  registros validos     %d\n", m.RegistrosValidos)
	fmt.Fprintf(w, "  registros descartados %d\n", m.RegistrosDescartados)
	fmt.Fprintf(w, "  alumnos unicos        %d\n", m.TotalAlumnosUnicos)
	fmt.Fprintf(w, "  materias diferentes   %d\n", m.TotalMateriasDiferentes)
	fmt.Fprintf(w, "  promedio notas        %.2f\n", m.MeanDisplay())
	fmt.Fprintf(w, "  correos generados     %d\n", m.CorreosGenerados)
	fmt.Fprintf(w, "  alumnos con matricula %d\n", m.AlumnosConMatricula)
	fmt.Fprintf(w, "  filas almacenadas     %d\n", res.Stored)
}

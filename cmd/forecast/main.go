package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	config "demand-insight-api/configs"
	"demand-insight-api/pkg/models"
	"demand-insight-api/pkg/services"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	calendarFile string
	logLevel     string
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd(config.LoadConfig()).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "forecast",
		Short:         "販売データの列推定と需要予測を行うCLI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&calendarFile, "calendar", cfg.CalendarFile, "カレンダーYAML（空なら組み込みの既定値）")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "ログレベル (debug, info, warn, error)")

	rootCmd.AddCommand(inferCmd())
	rootCmd.AddCommand(runCmd(cfg))
	rootCmd.AddCommand(demoCmd())
	return rootCmd
}

// inferCmd 列の役割推定とデータセットの概要をJSONで出力
func inferCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "infer <file>",
		Short: "CSV/Excelの列の役割を推定する",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := config.NewLogger("development", logLevel)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ds, err := loadDataset(args[0])
			if err != nil {
				return err
			}
			profile := services.NewSchemaService(services.WithSchemaLogger(logger)).ProfileDataset(ds)
			return writeJSON(cmd.OutOrStdout(), profile)
		},
	}
}

// runCmd 需要予測を実行して結果をJSONで出力
func runCmd(cfg *config.Config) *cobra.Command {
	var topN, horizon, workers int
	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "上位製品の需要予測と推奨事項を出力する",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := config.NewLogger("development", logLevel)
			if err != nil {
				return err
			}
			defer logger.Sync()

			calendar, err := loadCalendarService()
			if err != nil {
				return err
			}
			ds, err := loadDataset(args[0])
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc := services.NewDemandForecastService(calendar,
				services.WithLogger(logger),
				services.WithWorkers(workers),
			)
			result, err := svc.GeneratePredictions(ctx, ds, services.ForecastOptions{TopN: topN, Horizon: horizon})
			if err != nil {
				return err
			}
			logger.Info("✅ 予測完了", zap.String("run_id", result.RunID), zap.Int("products", result.TotalProducts))
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().IntVar(&topN, "top-n", cfg.ForecastTopN, "予測する上位製品数")
	cmd.Flags().IntVar(&horizon, "horizon", cfg.ForecastHorizon, "予測する月数")
	cmd.Flags().IntVar(&workers, "workers", cfg.ForecastWorkers, "並列数")
	return cmd
}

// demoCmd デモ用の月次販売データを書き出す
func demoCmd() *cobra.Command {
	var products, months int
	var seed int64
	cmd := &cobra.Command{
		Use:   "demo <out.csv|out.xlsx>",
		Short: "デモ用の販売データを生成する",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			calendar, err := loadCalendarService()
			if err != nil {
				return err
			}
			ds := services.GenerateDemoDataset(calendar, services.DemoOptions{Products: products, Months: months, Seed: seed})

			f, err := os.Create(args[0])
			if err != nil {
				return fmt.Errorf("出力ファイルの作成に失敗: %w", err)
			}
			if err := services.WriteFile(args[0], f, ds); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "📄 %d行を%sに書き出しました\n", len(ds.Records), args[0])
			return nil
		},
	}
	cmd.Flags().IntVar(&products, "products", 10, "製品数")
	cmd.Flags().IntVar(&months, "months", 24, "月数")
	cmd.Flags().Int64Var(&seed, "seed", 42, "乱数シード")
	return cmd
}

func loadCalendarService() (*services.CalendarService, error) {
	calendarCfg, err := config.LoadCalendar(calendarFile)
	if err != nil {
		return nil, err
	}
	return services.NewCalendarService(calendarCfg)
}

func loadDataset(path string) (*models.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("入力ファイルを開けません: %w", err)
	}
	defer f.Close()
	return services.LoadFile(path, f)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

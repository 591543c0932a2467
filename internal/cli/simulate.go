package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var (
	simulateCode  string
	simulatePrice float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Run one alert pass with an injected price",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateCode == "" {
			return errors.New("--code is required")
		}
		if simulatePrice <= 0 {
			return errors.New("--price must be greater than 0")
		}

		return getApp().SimulateAlert(cmd.Context(), simulateCode, simulatePrice)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateCode, "code", "", "Metal code to simulate (e.g. XAU)")
	simulateCmd.Flags().Float64Var(&simulatePrice, "price", 0, "Price in USD to evaluate alerts against")
}

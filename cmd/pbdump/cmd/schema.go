package cmd

import "github.com/spf13/cobra"

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "print the built-in demonstration schema",
	Run: func(cmd *cobra.Command, args []string) {
		printSchema()
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}

// Command mealctl is the operator CLI: it inspects forecasts, adjusts
// balances, mints development tokens and runs schema migrations.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(connectPostgres).Execute(); err != nil {
		os.Exit(1)
	}
}

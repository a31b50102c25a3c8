// pricectl drives the pricing service from a terminal: export the catalog to a
// sheet, import an edited sheet, and follow background updates to completion.
//
// Examples:
//
//	pricectl export -o prices.xlsx
//	pricectl import prices.xlsx --failed-out failed.xlsx
//	pricectl reconcile -f rows.json
//	pricectl poll gid://shopify/BulkOperation/123
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

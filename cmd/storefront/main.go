// Command storefront serves the retail catalog API.
package main

import "github.com/nimburion/storefront/pkg/cli"

func main() {
	cli.Execute(cli.NewStorefrontCommand())
}

package ports

import "github.com/tdex-network/escrowd/pkg/explorer"

// Explorer is the blockchain query surface used to detect payments, list
// the unspents of escrow wallets and broadcast settlements. All the calls
// go through the process-wide throttle of the explorer package.
type Explorer interface {
	explorer.Service
}
